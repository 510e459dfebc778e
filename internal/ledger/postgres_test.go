package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockOrderIsDirectionIndependent(t *testing.T) {
	f1, s1 := lockOrder("w-a", "w-b")
	f2, s2 := lockOrder("w-b", "w-a")

	require.Equal(t, f1, f2, "A->B and B->A must lock the same row first")
	require.Equal(t, s1, s2)
	require.LessOrEqual(t, f1, s1)

	same1, same2 := lockOrder("w-a", "w-a")
	require.Equal(t, "w-a", same1)
	require.Equal(t, "w-a", same2)
}
