package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNopLocker(t *testing.T) {
	release, err := NopLocker{}.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NotNil(t, release)
	release()
}
