package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
)

const (
	GeneratedCodeLen = 6
	MinCodeLen       = 4
	MaxCodeLen       = 16
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type MeetingCode string

type MeetingState int

const (
	MeetingOpen MeetingState = iota
	MeetingEnded
)

func (s MeetingState) String() string {
	if s == MeetingEnded {
		return "ended"
	}
	return "open"
}

// NormalizeCode upper-cases a client supplied code and checks its alphabet.
func NormalizeCode(raw string) (MeetingCode, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) < MinCodeLen || len(code) > MaxCodeLen {
		return "", ErrInvalidCode
	}
	for _, c := range code {
		if !strings.ContainsRune(codeAlphabet, c) {
			return "", ErrInvalidCode
		}
	}
	return MeetingCode(code), nil
}

// GenerateCode returns a random code; callers retry on collision.
func GenerateCode() MeetingCode {
	buf := make([]byte, GeneratedCodeLen)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return MeetingCode(buf)
}

type MeetingInfo struct {
	Code             MeetingCode   `json:"code"`
	State            string        `json:"state"`
	Host             ParticipantID `json:"host"`
	CreatedAt        time.Time     `json:"created_at"`
	ParticipantCount int           `json:"participant_count"`
	Presenter        ParticipantID `json:"presenter,omitempty"`
}
