package alert

import (
	"testing"
	"time"
)

func TestLevelOrdering(t *testing.T) {
	if !(LevelNormal < LevelWatch && LevelWatch < LevelWarning && LevelWarning < LevelCritical) {
		t.Fatal("level ordering must be NORMAL < WATCH < WARNING < CRITICAL")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"NORMAL", LevelNormal, false},
		{"watch", LevelWatch, false},
		{"Warning", LevelWarning, false},
		{"CRITICAL", LevelCritical, false},
		{"SEVERE", LevelNormal, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTitleFromCode(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"GRID_STRAIN", "Grid Strain"},
		{"PERFECT_STORM", "Perfect Storm"},
		{"PORT_GRIDLOCK", "Port Gridlock"},
		{"WATR_NORMAL", "Watr Normal"},
	}

	for _, tt := range tests {
		if got := TitleFromCode(tt.code); got != tt.want {
			t.Errorf("TitleFromCode(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestMaxLevel(t *testing.T) {
	if got := MaxLevel(nil); got != LevelNormal {
		t.Errorf("MaxLevel(nil) = %v, want NORMAL", got)
	}

	alerts := []Alert{
		{Level: LevelWatch},
		{Level: LevelCritical},
		{Level: LevelWarning},
	}
	if got := MaxLevel(alerts); got != LevelCritical {
		t.Errorf("MaxLevel = %v, want CRITICAL", got)
	}
}

func TestSortForDisplay(t *testing.T) {
	now := time.Now()

	alerts := []Alert{
		{Code: "GRID_EMERGENCY", Type: TypeGrid, Level: LevelCritical, TriggeredAt: now},
		{Code: "SUPPLY_CHAIN", Type: TypeLinked, Level: LevelWarning, TriggeredAt: now},
		{Code: "PORT_BUSY", Type: TypePort, Level: LevelWatch, TriggeredAt: now},
		{Code: "PERFECT_STORM", Type: TypeLinked, Level: LevelCritical, TriggeredAt: now},
		{Code: "MARKET_REACTION", Type: TypeMarket, Level: LevelWarning, TriggeredAt: now.Add(time.Minute)},
	}

	SortForDisplay(alerts)

	wantOrder := []string{"PERFECT_STORM", "MARKET_REACTION", "SUPPLY_CHAIN", "GRID_EMERGENCY", "PORT_BUSY"}
	for i, code := range wantOrder {
		if alerts[i].Code != code {
			t.Errorf("position %d: got %s, want %s", i, alerts[i].Code, code)
		}
	}
}

func TestSortForDisplayRecencyTieBreak(t *testing.T) {
	older := time.Now()
	newer := older.Add(5 * time.Minute)

	alerts := []Alert{
		{Code: "A", Type: TypeGrid, Level: LevelWarning, TriggeredAt: older},
		{Code: "B", Type: TypeGrid, Level: LevelWarning, TriggeredAt: newer},
	}

	SortForDisplay(alerts)

	if alerts[0].Code != "B" {
		t.Errorf("equal levels should order by recency, got %s first", alerts[0].Code)
	}
}
