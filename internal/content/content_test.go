package content_test

import (
	"testing"

	"github.com/irancrypto/marketbot/internal/content"
	"github.com/irancrypto/marketbot/internal/market"
	"github.com/irancrypto/marketbot/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() *content.Payload {
	return &content.Payload{
		Coins: []market.Coin{
			{Name: "BTC", Volume: 5_000_000_000},
			{Name: "ETH", Volume: 2_000_000_000},
			{Name: "XRP", Volume: 1_000_000_000},
		},
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	p := samplePayload()
	p.Interval = "daily"

	raw, err := p.Marshal()
	require.NoError(t, err)

	got, err := content.UnmarshalPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestAbbreviatedVolumes(t *testing.T) {
	t.Parallel()

	p := samplePayload()

	assert.Equal(t, "5.0B", utils.AbbreviateNumber(p.Coins[0].Volume))
	assert.Equal(t, "2.0B", utils.AbbreviateNumber(p.Coins[1].Volume))
	assert.Equal(t, "1.0B", utils.AbbreviateNumber(p.Coins[2].Volume))
	assert.Equal(t, "8.0B", utils.AbbreviateNumber(p.TotalVolume()))
}

func TestPromptIncludesFigures(t *testing.T) {
	t.Parallel()

	prompt := content.Prompt(content.TargetVol, samplePayload())
	assert.Contains(t, prompt, "8.0B")
	assert.Contains(t, prompt, "BTC")
}

func TestTemplateSelection(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "coin-recap", content.Template(content.TargetDailyCoin))
	assert.Equal(t, "coin-recap", content.Template(content.TargetWeeklyCoin))
	assert.Equal(t, "exchange-recap", content.Template(content.TargetMonthlyExchange))
	assert.Empty(t, content.Template(content.TargetTrends), "tweets are text-only")
	assert.Empty(t, content.Template(content.TargetVol), "tweets are text-only")
}

func TestEmptyPayload(t *testing.T) {
	t.Parallel()

	assert.True(t, (&content.Payload{}).Empty())
	assert.False(t, samplePayload().Empty())
}
