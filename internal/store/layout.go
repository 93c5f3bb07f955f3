package store

import "path"

// Cross-sectional tables; source tables are named by the configured prefixes
const (
	AvailableTable = "available"
	MarketTable    = "market"
	CSSTable       = "css"
	ICovTable      = "icov"
	QualityTable   = "quality"
)

// Factor stages persisted by the availability pipeline
const (
	StageRaw = "raw"
	StageEWA = "ewa"
	StageSig = "sig"
)

// FactorsByInstrumentTable holds one factor class for one instrument
func FactorsByInstrumentTable(class, instrument string) string {
	return path.Join("factors_by_instru", class, instrument)
}

// FactorsAvailableTable holds one factor class across the available universe at stage
func FactorsAvailableTable(stage, class string) string {
	return path.Join("factors_avlb_"+stage, class)
}

func TestReturnsByInstrumentTable(ret, instrument string) string {
	return path.Join("test_returns_by_instru", ret, instrument)
}

func TestReturnsAvailableTable(ret string) string {
	return path.Join("test_returns_avlb_raw", ret)
}

func ICTestTable(stage, saveID string) string { return path.Join("ic_tests", stage, saveID) }
func VTTestTable(stage, saveID string) string { return path.Join("vt_tests", stage, saveID) }
