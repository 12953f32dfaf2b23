package firebase

import (
	"context"
	"strings"

	"univmarket/pkg/errors"
)

// DevTokenPrefix marks tokens accepted without Firebase in development: "dev-<uid>".
const DevTokenPrefix = "dev-"

type Verifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// DevTokenVerifier accepts dev tokens and hands everything else to Next, if set.
type DevTokenVerifier struct {
	Next Verifier
}

func NewDevTokenVerifier(next Verifier) *DevTokenVerifier {
	return &DevTokenVerifier{Next: next}
}

func (v *DevTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	if uid, ok := strings.CutPrefix(token, DevTokenPrefix); ok {
		if uid == "" {
			return "", errors.Unauthorized("Dev token has no user id", nil)
		}
		return uid, nil
	}
	if v.Next == nil {
		return "", errors.Unauthorized("Invalid or expired token", nil)
	}
	return v.Next.VerifyToken(ctx, token)
}
