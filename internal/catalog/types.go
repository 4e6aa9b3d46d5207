// Package catalog holds the reference data the engine treats as read-only
// lookup tables: indicators, monitoring stations, and regions.
package catalog

// Well-known indicator codes
const (
	IndGridDemand     = "GRID_DEMAND"
	IndGridGeneration = "GRID_GENERATION"
	IndGroundwater    = "GW_LEVEL"
	IndPortWaiting    = "PORT_WAITING"
	IndPortDwell      = "PORT_DWELL"
	IndPortVessels    = "PORT_VESSELS"
	IndPortThroughput = "PORT_THROUGHPUT"
)

// Indicator is one tracked metric
type Indicator struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit,omitempty"`
	Domain   string `json:"domain"`
}

// Station is a physical monitoring point (well, gauge, port terminal)
type Station struct {
	ID         int64
	ExternalID string
	Name       string
	Type       string
	RegionID   *int64
}

// Region is a geographic scope for regional indicators
type Region struct {
	ID   int64
	Code string
	Name string
}
