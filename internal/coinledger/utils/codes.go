package utils

import (
	"crypto/rand"
	"io"
	"strings"
)

// ReferralAlphabet holds the 33 symbols used in referral codes. I, O and 0
// are left out so codes survive being read aloud or copied by hand.
const ReferralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ123456789"

// ReferralCodeLength is the fixed length of a referral code
const ReferralCodeLength = 8

// NormalizeReferralCode trims and upper-cases user input
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidReferralCode checks length and alphabet of an already normalized code
func ValidReferralCode(code string) bool {
	if len(code) != ReferralCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(ReferralAlphabet, r) {
			return false
		}
	}
	return true
}

// rejection bound: the largest multiple of len(ReferralAlphabet) below 256
const maxUnbiased = 256 - 256%len(ReferralAlphabet)

// GenerateReferralCode draws a code from src, or from crypto/rand when src
// is nil. Bytes at or above maxUnbiased are discarded so every symbol is
// equally likely.
func GenerateReferralCode(src io.Reader) (string, error) {
	if src == nil {
		src = rand.Reader
	}
	code := make([]byte, 0, ReferralCodeLength)
	buf := make([]byte, ReferralCodeLength*2)
	for len(code) < ReferralCodeLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			code = append(code, ReferralAlphabet[int(b)%len(ReferralAlphabet)])
			if len(code) == ReferralCodeLength {
				break
			}
		}
	}
	return string(code), nil
}
