// Package content defines the market snapshot payload captured at schedule
// time and the prompt/template inputs built from it at delivery time.
package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/irancrypto/marketbot/internal/market"
	"github.com/irancrypto/marketbot/pkg/utils"
)

// Content targets. The target names what a scheduled entry should become
// once rendered; meaning is platform-specific.
const (
	TargetTrends          = "trends"
	TargetVol             = "vol"
	TargetDailyCoin       = "daily-coin"
	TargetWeeklyCoin      = "weekly-coin"
	TargetMonthlyExchange = "monthly-exchange"
)

// SystemPrompt instructs the model on voice and language for all targets.
const SystemPrompt = "You are the Persian-language social media voice of an Iranian " +
	"cryptocurrency market tracker. Write short, factual, engaging posts in Persian. " +
	"Never invent numbers; use only the figures given."

// Payload is the market snapshot captured at schedule time. Posting from the
// snapshot guarantees the published numbers match what was current when the
// post was scheduled.
type Payload struct {
	Coins     []market.Coin     `json:"coins,omitempty"`
	Exchanges []market.Exchange `json:"exchanges,omitempty"`
	Interval  string            `json:"interval,omitempty"`
}

// Marshal encodes a payload for storage in a scheduled post.
func (p *Payload) Marshal() (json.RawMessage, error) {
	data, err := sonic.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return data, nil
}

// UnmarshalPayload decodes a stored payload.
func UnmarshalPayload(raw json.RawMessage) (*Payload, error) {
	var p Payload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &p, nil
}

// Empty reports whether the snapshot has nothing to post about.
func (p *Payload) Empty() bool {
	return len(p.Coins) == 0 && len(p.Exchanges) == 0
}

// TotalVolume sums the traded volume across all entries.
func (p *Payload) TotalVolume() float64 {
	var total float64

	for _, c := range p.Coins {
		total += c.Volume
	}

	for _, e := range p.Exchanges {
		total += e.Volume
	}

	return total
}

// Prompt builds the user prompt for a target from the payload figures.
func Prompt(target string, p *Payload) string {
	var b strings.Builder

	switch target {
	case TargetTrends:
		b.WriteString("Write a tweet about today's trending coins in the Iranian market:\n")
	case TargetVol:
		b.WriteString("Write a tweet about today's trading volume in the Iranian market. ")
		fmt.Fprintf(&b, "Total volume: %s IRR.\n", utils.AbbreviateNumber(p.TotalVolume()))
	case TargetDailyCoin:
		b.WriteString("Write a caption for today's most popular coins:\n")
	case TargetWeeklyCoin:
		b.WriteString("Write a caption for this week's coin recap:\n")
	case TargetMonthlyExchange:
		b.WriteString("Write a caption for this month's exchange volume recap:\n")
	default:
		fmt.Fprintf(&b, "Write a post about %s:\n", target)
	}

	for i, c := range p.Coins {
		fmt.Fprintf(&b, "%d. %s (%s): volume %s IRR, price $%.2f\n",
			i+1, c.Name, c.Symbol, utils.AbbreviateNumber(c.Volume), c.PriceUSD)
	}

	for i, e := range p.Exchanges {
		fmt.Fprintf(&b, "%d. %s: volume %s IRR\n",
			i+1, e.Name, utils.AbbreviateNumber(e.Volume))
	}

	return b.String()
}

// Template returns the renderer template name for a target, or empty when
// the target is text-only.
func Template(target string) string {
	switch target {
	case TargetDailyCoin, TargetWeeklyCoin:
		return "coin-recap"
	case TargetMonthlyExchange:
		return "exchange-recap"
	default:
		return ""
	}
}

// TemplateRow is one ranked line of a rendered recap image.
type TemplateRow struct {
	Rank   string
	Name   string
	NameFa string
	Volume string
	Price  string
}

// TemplateData builds the renderer input for a payload, with fa-IR digits.
func TemplateData(target string, p *Payload) map[string]any {
	rows := make([]TemplateRow, 0, len(p.Coins)+len(p.Exchanges))

	for i, c := range p.Coins {
		rows = append(rows, TemplateRow{
			Rank:   utils.LocalizeDigits(fmt.Sprintf("%d", i+1)),
			Name:   c.Name,
			NameFa: c.NameFa,
			Volume: utils.LocalizeDigits(utils.AbbreviateNumber(c.Volume)),
			Price:  utils.LocalizeDigits(fmt.Sprintf("$%.2f", c.PriceUSD)),
		})
	}

	for i, e := range p.Exchanges {
		rows = append(rows, TemplateRow{
			Rank:   utils.LocalizeDigits(fmt.Sprintf("%d", i+1)),
			Name:   e.Name,
			NameFa: e.NameFa,
			Volume: utils.LocalizeDigits(utils.AbbreviateNumber(e.Volume)),
		})
	}

	return map[string]any{
		"Target":   target,
		"Interval": p.Interval,
		"Rows":     rows,
		"Total":    utils.LocalizeDigits(utils.AbbreviateNumber(p.TotalVolume())),
	}
}
