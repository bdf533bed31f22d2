package message

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"testing"
)

type NestedStruct struct {
	A int64 `order:"big"`
	B int32
}

func (n *NestedStruct) String() string {
	return fmt.Sprintf("%v", *n)
}

type SubStruct struct {
	G int32
}

func (s *SubStruct) String() string {
	return fmt.Sprintf("%v", *s)
}

type MainStruct struct {
	C uint64 `order:"big"`
	D string
	F *SubStruct
	E []*NestedStruct
}

func TestNested(t *testing.T) {
	r := new(MainStruct)
	r.C = 19031962
	r.D = "Just a test"
	r.E = make([]*NestedStruct, 3)
	r.F = new(SubStruct)
	r.F.G = 0x23
	for i := 0; i < 3; i++ {
		n := new(NestedStruct)
		n.A = int64(255 - i)
		n.B = int32(815 * (i + 1))
		r.E[i] = n
	}

	data, err := Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Printf("<<< %v\n", r)
	fmt.Printf("    [%s]\n", hex.EncodeToString(data))

	s := new(MainStruct)
	s.F = new(SubStruct)
	s.E = make([]*NestedStruct, 3)
	for i := 0; i < 3; i++ {
		s.E[i] = new(NestedStruct)
	}
	if err = Unmarshal(s, data); err != nil {
		t.Fatal(err)
	}
	fmt.Printf(">>> %v\n", s)
}

func TestDescriptionMarshal(t *testing.T) {
	msg := &DescriptionBody{Id: 5, Name: "vrpn_Tracker Position"}
	data, err := Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Printf("    [%s]\n", hex.EncodeToString(data))

	msg2 := new(DescriptionBody)
	if err = Unmarshal(msg2, data); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, mustMarshal(t, msg2)) {
		t.Fatal("marshal/unmarshal mismatch")
	}
}

type vec3 struct {
	X, Y, Z float64 `order:"big"`
}

func TestFloatMarshalRoundTrip(t *testing.T) {
	in := &vec3{X: 1.5, Y: -2.25, Z: 0}
	data, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out := new(vec3)
	if err := Unmarshal(out, data); err != nil {
		t.Fatal(err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func mustMarshal(t *testing.T, obj interface{}) []byte {
	t.Helper()
	buf, err := Marshal(obj)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}
