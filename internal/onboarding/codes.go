package onboarding

import (
	"errors"

	"github.com/speps/go-hashids/v2"
)

// codeAlphabet drops characters that are easy to misread (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeGenerator derives short, stable landlord codes from user ids. Tenants
// type the code during signup to find their landlord.
type CodeGenerator struct {
	h *hashids.HashID
}

func NewCodeGenerator(salt string) (*CodeGenerator, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 6
	hd.Alphabet = codeAlphabet
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, err
	}
	return &CodeGenerator{h: h}, nil
}

// Code returns the landlord code for userID. Distinct ids always encode to
// distinct codes.
func (g *CodeGenerator) Code(userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("landlord code: user id must be positive")
	}
	return g.h.EncodeInt64([]int64{userID})
}

// UserID reverses Code.
func (g *CodeGenerator) UserID(code string) (int64, error) {
	nums, err := g.h.DecodeInt64WithError(code)
	if err != nil {
		return 0, err
	}
	if len(nums) == 0 {
		return 0, errors.New("landlord code: empty")
	}
	return nums[0], nil
}
