package xid

import (
	"strings"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// TransactionID returns a short externally visible id such as T1A2B3C4D5E6F.
func TransactionID() string {
	id := uuid.New()
	return "T" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}
