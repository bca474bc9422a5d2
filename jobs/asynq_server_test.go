package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsShutdownAcceptsCleanStops(t *testing.T) {
	assert.True(t, IsShutdown(nil))
	assert.True(t, IsShutdown(context.Canceled))
	assert.True(t, IsShutdown(fmt.Errorf("worker run: %w", context.Canceled)))
}

func TestIsShutdownRejectsFailures(t *testing.T) {
	assert.False(t, IsShutdown(errors.New("redis connection refused")))
	assert.False(t, IsShutdown(context.DeadlineExceeded))
}
