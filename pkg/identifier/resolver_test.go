package identifier_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	"github.com/ppongpan/Q-Collector-sub006/pkg/identifier"
)

func TestDictionaryResolver(t *testing.T) {
	d := identifier.NewDictionaryResolver()
	ctx := context.Background()

	t.Run("ascii passes through exact", func(t *testing.T) {
		res, err := d.Resolve(ctx, "Customer Name", identifier.UsageColumn)
		require.NoError(t, err)
		assert.Equal(t, "Customer Name", res.Text)
		assert.Equal(t, constants.ConfidenceExact, res.Confidence)
	})

	t.Run("known thai label translates exact", func(t *testing.T) {
		res, err := d.Resolve(ctx, "ชื่อ", identifier.UsageColumn)
		require.NoError(t, err)
		assert.Equal(t, "name", res.Text)
		assert.Equal(t, constants.ConfidenceExact, res.Confidence)
	})

	t.Run("compound of known words is approximate", func(t *testing.T) {
		res, err := d.Resolve(ctx, "ชื่อ สถานะ", identifier.UsageColumn)
		require.NoError(t, err)
		assert.Equal(t, "name status", res.Text)
		assert.Equal(t, constants.ConfidenceApproximate, res.Confidence)
	})

	t.Run("unknown thai yields nothing", func(t *testing.T) {
		res, err := d.Resolve(ctx, "ขนมจีบ", identifier.UsageColumn)
		require.NoError(t, err)
		assert.Empty(t, res.Text)
	})
}

func TestHashResolver(t *testing.T) {
	h := identifier.NewHashResolver()
	ctx := context.Background()

	col, err := h.Resolve(ctx, "อะไรก็ได้", identifier.UsageColumn)
	require.NoError(t, err)
	assert.Regexp(t, `^field_[0-9a-f]{6}$`, col.Text)
	assert.Equal(t, constants.ConfidenceFallback, col.Confidence)

	tbl, err := h.Resolve(ctx, "อะไรก็ได้", identifier.UsageTable)
	require.NoError(t, err)
	assert.Regexp(t, `^form_[0-9a-f]{6}$`, tbl.Text)

	// Same input always hashes to the same name.
	again, err := h.Resolve(ctx, "อะไรก็ได้", identifier.UsageColumn)
	require.NoError(t, err)
	assert.Equal(t, col.Text, again.Text)
}

func TestChain_FallthroughOrder(t *testing.T) {
	chain := identifier.NewChain(
		identifier.NewDictionaryResolver(),
		identifier.NewHashResolver(),
	)
	ctx := context.Background()

	t.Run("dictionary wins when it can translate", func(t *testing.T) {
		res, err := chain.Resolve(ctx, "อีเมล", identifier.UsageColumn)
		require.NoError(t, err)
		assert.Equal(t, "email", res.Text)
		assert.Equal(t, constants.ConfidenceExact, res.Confidence)
	})

	t.Run("hash catches untranslatable input", func(t *testing.T) {
		res, err := chain.Resolve(ctx, "ข้อความที่ไม่มีในพจนานุกรม", identifier.UsageColumn)
		require.NoError(t, err)
		assert.Regexp(t, `^field_[0-9a-f]{6}$`, res.Text)
		assert.Equal(t, constants.ConfidenceFallback, res.Confidence)
	})
}
