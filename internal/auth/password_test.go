package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherProducesBcrypt(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
		t.Fatalf("hash does not match password: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil || cost != bcrypt.MinCost {
		t.Fatalf("cost = %d, %v", cost, err)
	}
}

func TestHasherEmptyPassword(t *testing.T) {
	if _, err := NewHasher(bcrypt.MinCost).Hash(""); err != nil {
		t.Fatalf("Hash(\"\"): %v", err)
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	cases := map[int]int{0: DefaultCost, 1: bcrypt.MinCost, 99: bcrypt.MaxCost, 12: 12}
	for in, want := range cases {
		if got := NewHasher(in).cost; got != want {
			t.Errorf("NewHasher(%d).cost = %d, want %d", in, got, want)
		}
	}
}
