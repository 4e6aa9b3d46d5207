// Package linked implements the multi-signal correlation engine: cross-domain
// composite rules plus market, sentiment, and predictive correlations, all
// driven by the declarative ruleset.
package linked

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/rules"
	"github.com/pwstlabs/linkedfate/internal/signals"
)

// Engine evaluates composite and correlation rules over the per-domain
// alerts produced by a risk evaluation pass
type Engine struct {
	rules     *rules.Ruleset
	market    signals.MarketSource
	sentiment signals.SentimentSource
	forecast  signals.ForecastSource
	log       *zap.Logger
}

// NewEngine creates a correlation engine. Any signal source may be nil, in
// which case the correlations depending on it are skipped.
func NewEngine(rs *rules.Ruleset, market signals.MarketSource, sentiment signals.SentimentSource, forecast signals.ForecastSource, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{rules: rs, market: market, sentiment: sentiment, forecast: forecast, log: log}
}

// Composites applies the cross-domain conjunction rules in declaration
// order. A rule fires when every listed domain sits at or above the rule's
// minimum level. An exclusive rule that fires suppresses everything after it.
func (e *Engine) Composites(levels map[alert.Domain]alert.Level, now time.Time) []alert.Alert {
	var out []alert.Alert

	for _, rule := range e.rules.Composites {
		minLevel, err := alert.ParseLevel(rule.MinLevel)
		if err != nil {
			e.log.Warn("composite rule has invalid minLevel, skipping",
				zap.String("code", rule.Code), zap.Error(err))
			continue
		}

		fired := true
		worst := alert.LevelNormal
		domainLevels := make(map[string]string, len(rule.Domains))
		for _, d := range rule.Domains {
			level := levels[alert.Domain(d)]
			domainLevels[d] = level.String()
			if level < minLevel {
				fired = false
				break
			}
			if level > worst {
				worst = level
			}
		}
		if !fired {
			continue
		}

		level := worst
		if !rule.Escalate {
			if level, err = alert.ParseLevel(rule.Level); err != nil {
				e.log.Warn("composite rule has invalid level, skipping",
					zap.String("code", rule.Code), zap.Error(err))
				continue
			}
		}

		out = append(out, alert.Alert{
			Type:        alert.TypeLinked,
			Code:        rule.Code,
			Level:       level,
			RegionCode:  e.rules.Metadata.RegionCode,
			Title:       alert.TitleFromCode(rule.Code),
			Message:     rule.Message,
			TriggeredAt: now,
			IsActive:    true,
			Payload:     alert.Payload{DomainLevels: domainLevels},
		})

		e.log.Warn("composite rule triggered", zap.String("code", rule.Code), zap.String("level", level.String()))

		if rule.Exclusive {
			return out
		}
	}

	return out
}

// Correlate runs the market, sentiment, triple, and predictive checks
// against the current domain alerts. Signal source failures are isolated:
// the correlations that depend on the failed source are skipped and the
// rest still run.
func (e *Engine) Correlate(ctx context.Context, domainAlerts map[alert.Domain]*alert.Alert, now time.Time) []alert.Alert {
	var out []alert.Alert

	quotes := e.fetchQuotes(ctx)
	marketAlerts, strongestMove := e.marketCorrelations(domainAlerts, quotes, now)
	out = append(out, marketAlerts...)

	sentiment := e.fetchSentiment(ctx, now)
	out = append(out, e.sentimentCorrelations(domainAlerts, sentiment, now)...)

	if sentiment != nil && sentiment.Score <= e.rules.Sentiment.TriggerScore && strongestMove != nil {
		out = append(out, e.tripleCorrelation(domainAlerts, sentiment, *strongestMove, now)...)
	}

	out = append(out, e.predictiveCorrelations(ctx, domainAlerts, now)...)

	return out
}

func (e *Engine) fetchQuotes(ctx context.Context) map[string]signals.Quote {
	if e.market == nil {
		return nil
	}

	symbols := make([]string, 0, len(e.rules.Market.Watchlist))
	for _, w := range e.rules.Market.Watchlist {
		symbols = append(symbols, w.Symbol)
	}

	quotes, err := e.market.Quotes(ctx, symbols)
	if err != nil {
		e.log.Error("market source unavailable, skipping market correlations", zap.Error(err))
		return nil
	}

	bySymbol := make(map[string]signals.Quote, len(quotes))
	for _, q := range quotes {
		bySymbol[q.Symbol] = q
	}
	return bySymbol
}

func (e *Engine) fetchSentiment(ctx context.Context, now time.Time) *signals.SentimentSummary {
	if e.sentiment == nil {
		return nil
	}
	s, err := e.sentiment.Sentiment(ctx, now.Add(-24*time.Hour))
	if err != nil {
		e.log.Error("sentiment source unavailable, skipping sentiment correlations", zap.Error(err))
		return nil
	}
	return s
}

// worstAlert returns the most severe alert across the given domains, or nil
// when none reaches WARNING
func worstAlert(domainAlerts map[alert.Domain]*alert.Alert, domains []string) *alert.Alert {
	var worst *alert.Alert
	for _, d := range domains {
		a := domainAlerts[alert.Domain(d)]
		if a == nil || a.Level < alert.LevelWarning {
			continue
		}
		if worst == nil || a.Level > worst.Level {
			worst = a
		}
	}
	return worst
}

// marketCorrelations pairs WARNING+ physical alerts with concurrent price
// moves past the moderate threshold. Also returns the strongest correlated
// quote for the triple check.
func (e *Engine) marketCorrelations(domainAlerts map[alert.Domain]*alert.Alert, quotes map[string]signals.Quote, now time.Time) ([]alert.Alert, *signals.Quote) {
	if len(quotes) == 0 {
		return nil, nil
	}

	var out []alert.Alert
	var strongest *signals.Quote

	for _, entry := range e.rules.Market.Watchlist {
		physical := worstAlert(domainAlerts, entry.Domains)
		if physical == nil {
			continue
		}

		quote, ok := quotes[entry.Symbol]
		if !ok {
			continue
		}

		move := math.Abs(quote.ChangePercent)
		if move < e.rules.Market.ModerateMovePct {
			continue
		}

		confidence := alert.ConfidenceModerate
		if move >= e.rules.Market.StrongMovePct {
			confidence = alert.ConfidenceStrong
		}

		q := quote
		if strongest == nil || move > math.Abs(strongest.ChangePercent) {
			strongest = &q
		}

		out = append(out, alert.Alert{
			Type:       alert.TypeMarket,
			Code:       entry.CorrelationType,
			Level:      alert.LevelWarning,
			RegionCode: e.rules.Metadata.RegionCode,
			Title:      fmt.Sprintf("Market Reaction: %s", alert.TitleFromCode(entry.CorrelationType)),
			Message: fmt.Sprintf("MARKET REACTION: %s %s %.1f%% while %s under %s conditions",
				quote.Symbol, quote.Direction(), move, physical.Code, physical.Level),
			TriggeredAt: now,
			IsActive:    true,
			Payload: alert.Payload{
				Symbol:        quote.Symbol,
				ChangePercent: alert.Float64(quote.ChangePercent),
				Direction:     quote.Direction(),
				PhysicalAlert: physical.Code,
				Confidence:    confidence.String(),
			},
		})

		e.log.Info("market correlation detected",
			zap.String("symbol", quote.Symbol),
			zap.Float64("move", quote.ChangePercent),
			zap.String("physical", physical.Code),
			zap.String("confidence", confidence.String()),
		)
	}

	return out, strongest
}

// sentimentCorrelations pairs WARNING+ physical alerts with negative
// aggregate news sentiment
func (e *Engine) sentimentCorrelations(domainAlerts map[alert.Domain]*alert.Alert, sentiment *signals.SentimentSummary, now time.Time) []alert.Alert {
	if sentiment == nil || sentiment.Score > e.rules.Sentiment.TriggerScore {
		return nil
	}

	physical := worstAlert(domainAlerts, []string{"GRID", "WATR", "FLOW"})
	if physical == nil {
		return nil
	}

	confidence := alert.ConfidenceModerate
	if sentiment.Score <= e.rules.Sentiment.StrongScore {
		confidence = alert.ConfidenceStrong
	}

	return []alert.Alert{{
		Type:       alert.TypeMarket,
		Code:       "NEWS_SENTIMENT",
		Level:      alert.LevelWarning,
		RegionCode: e.rules.Metadata.RegionCode,
		Title:      "Market Reaction: News Sentiment",
		Message: fmt.Sprintf("NEWS SENTIMENT: score %.2f across %d articles while %s under %s conditions",
			sentiment.Score, sentiment.ArticleCount, physical.Code, physical.Level),
		TriggeredAt: now,
		IsActive:    true,
		Payload: alert.Payload{
			SentimentScore: alert.Float64(sentiment.Score),
			PhysicalAlert:  physical.Code,
			Confidence:     confidence.String(),
		},
	}}
}

// tripleCorrelation fires when a physical alert, negative sentiment, and a
// market move all line up at once. Confidence is always STRONG.
func (e *Engine) tripleCorrelation(domainAlerts map[alert.Domain]*alert.Alert, sentiment *signals.SentimentSummary, quote signals.Quote, now time.Time) []alert.Alert {
	physical := worstAlert(domainAlerts, []string{"GRID", "WATR", "FLOW"})
	if physical == nil {
		return nil
	}

	level := alert.LevelWarning
	if physical.Level == alert.LevelCritical {
		level = alert.LevelCritical
	}

	return []alert.Alert{{
		Type:       alert.TypeMarket,
		Code:       "TRIPLE_CORRELATION",
		Level:      level,
		RegionCode: e.rules.Metadata.RegionCode,
		Title:      "Market Reaction: Triple Correlation",
		Message: fmt.Sprintf("TRIPLE CORRELATION: %s %s %.1f%% + sentiment %.2f + %s %s",
			quote.Symbol, quote.Direction(), math.Abs(quote.ChangePercent),
			sentiment.Score, physical.Code, physical.Level),
		TriggeredAt: now,
		IsActive:    true,
		Payload: alert.Payload{
			Symbol:         quote.Symbol,
			ChangePercent:  alert.Float64(quote.ChangePercent),
			Direction:      quote.Direction(),
			SentimentScore: alert.Float64(sentiment.Score),
			PhysicalAlert:  physical.Code,
			Confidence:     alert.ConfidenceStrong.String(),
		},
	}}
}

// predictiveCorrelations checks forecast extremes against danger
// thresholds: projected heat while the grid margin is already thin, and
// hard freezes unconditionally.
func (e *Engine) predictiveCorrelations(ctx context.Context, domainAlerts map[alert.Domain]*alert.Alert, now time.Time) []alert.Alert {
	if e.forecast == nil {
		return nil
	}

	forecasts, err := e.forecast.Forecasts(ctx)
	if err != nil {
		e.log.Error("forecast source unavailable, skipping predictive correlations", zap.Error(err))
		return nil
	}

	p := e.rules.Predictive
	gridStressed := false
	if g := domainAlerts[alert.DomainGrid]; g != nil {
		if m := g.Payload.ReserveMarginPct; m != nil {
			gridStressed = *m < p.HeatMarginPct
		} else {
			gridStressed = g.Level >= alert.LevelWatch
		}
	}

	var out []alert.Alert
	for _, f := range forecasts {
		if f.MaxTempF >= p.HeatTempF && gridStressed {
			out = append(out, alert.Alert{
				Type:       alert.TypePredictive,
				Code:       "HEAT_GRID_STRAIN",
				Level:      alert.LevelWarning,
				RegionCode: e.rules.Metadata.RegionCode,
				Title:      alert.TitleFromCode("HEAT_GRID_STRAIN"),
				Message: fmt.Sprintf("PREDICTED: %.0f°F at %s within %s while grid margin already thin",
					f.MaxTempF, f.Location, p.PredictionWindow),
				TriggeredAt: now,
				IsActive:    true,
				Payload: alert.Payload{
					ForecastMetric:   "max_temp_f",
					ForecastValue:    alert.Float64(f.MaxTempF),
					PredictionWindow: p.PredictionWindow,
				},
			})
		}

		if f.MinTempF <= p.FreezeTempF {
			out = append(out, alert.Alert{
				Type:       alert.TypePredictive,
				Code:       "HARD_FREEZE_RISK",
				Level:      alert.LevelWarning,
				RegionCode: e.rules.Metadata.RegionCode,
				Title:      alert.TitleFromCode("HARD_FREEZE_RISK"),
				Message: fmt.Sprintf("PREDICTED: hard freeze %.0f°F at %s within %s",
					f.MinTempF, f.Location, p.PredictionWindow),
				TriggeredAt: now,
				IsActive:    true,
				Payload: alert.Payload{
					ForecastMetric:   "min_temp_f",
					ForecastValue:    alert.Float64(f.MinTempF),
					PredictionWindow: p.PredictionWindow,
				},
			})
		}
	}

	return out
}
