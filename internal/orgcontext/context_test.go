package orgcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestOrgIDRoundTrip(t *testing.T) {
	ctx := WithOrgID(context.Background(), snowflake.ID(42))

	got, ok := OrgIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), got)
}

func TestOrgIDFromContextCoercions(t *testing.T) {
	base := context.Background()

	got, ok := OrgIDFromContext(context.WithValue(base, OrgContextKey{}, int64(7)))
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(7), got)

	got, ok = OrgIDFromContext(context.WithValue(base, OrgContextKey{}, " 1234567890 "))
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(1234567890), got)

	_, ok = OrgIDFromContext(context.WithValue(base, OrgContextKey{}, "not-a-snowflake"))
	assert.False(t, ok)

	_, ok = OrgIDFromContext(base)
	assert.False(t, ok)
}
