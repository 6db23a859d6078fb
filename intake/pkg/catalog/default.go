package catalog

// Well-known column names the engine relies on.
const (
	ColSampleNumber = "sample_number"
	ColYear         = "year"
	ColMonth        = "month"
	ColDay          = "day"
	ColHour         = "hour"
	ColMinute       = "minute"
	ColSecond       = "second"
	ColLongitude    = "longitude"
	ColLatitude     = "latitude"
	ColRegionID     = "region_id"
	ColWOCECO2Water = "woce_co2_water"
	ColWOCECO2Atm   = "woce_co2_atm"
)

func bounds(lo, hi float64) *Bounds {
	return &Bounds{Min: lo, Max: hi}
}

var defaultColumns = []ColumnDescriptor{
	{Name: ColSampleNumber, Kind: KindInt, Role: RoleFileMetadata, Description: "row number within the dataset"},
	{Name: ColYear, Kind: KindInt, Bounds: bounds(1900, 2100), Description: "sample year (UTC)"},
	{Name: ColMonth, Kind: KindInt, Bounds: bounds(1, 12), Description: "sample month of year (UTC)"},
	{Name: ColDay, Kind: KindInt, Bounds: bounds(1, 31), Description: "sample day of month (UTC)"},
	{Name: ColHour, Kind: KindInt, Bounds: bounds(0, 23), Description: "sample hour of day (UTC)"},
	{Name: ColMinute, Kind: KindInt, Bounds: bounds(0, 59), Description: "sample minute of hour (UTC)"},
	{Name: ColSecond, Kind: KindFloat, Bounds: bounds(0, 60), Units: "s", Description: "sample second of minute (UTC)"},
	{Name: ColLongitude, Kind: KindFloat, Longitude: true, Bounds: bounds(-540, 540), Units: "degrees_east", Description: "sample longitude"},
	{Name: ColLatitude, Kind: KindFloat, Bounds: bounds(-90, 90), Units: "degrees_north", Description: "sample latitude"},
	{Name: "sample_depth", Kind: KindFloat, Bounds: bounds(0, 10000), Units: "m", Description: "sample depth"},
	{Name: "sal", Kind: KindFloat, Bounds: bounds(0, 50), Units: "PSU", Description: "sea surface salinity"},
	{Name: "temp", Kind: KindFloat, Bounds: bounds(-10, 50), Units: "degrees_C", Description: "sea surface temperature"},
	{Name: "temperature_equi", Kind: KindFloat, Bounds: bounds(-10, 50), Units: "degrees_C", Description: "equilibrator temperature"},
	{Name: "pressure_atm", Kind: KindFloat, Bounds: bounds(850, 1150), Units: "hPa", Description: "sea-level atmospheric pressure"},
	{Name: "pressure_equi", Kind: KindFloat, Bounds: bounds(850, 1150), Units: "hPa", Description: "equilibrator pressure"},
	{Name: "xco2_water_equi", Kind: KindFloat, Bounds: bounds(0, 100000), Units: "umol/mol", Description: "water xCO2 at equilibrator temperature, dry air"},
	{Name: "xco2_atm", Kind: KindFloat, Bounds: bounds(0, 100000), Units: "umol/mol", Description: "atmospheric xCO2, dry air"},
	{Name: "pco2_water_sst", Kind: KindFloat, Bounds: bounds(0, 100000), Units: "uatm", Description: "water pCO2 at sea surface temperature"},
	{Name: "fco2_water_sst", Kind: KindFloat, Bounds: bounds(0, 100000), Units: "uatm", Description: "water fCO2 at sea surface temperature"},
	{Name: "ship_speed", Kind: KindFloat, Bounds: bounds(0, 60), Units: "knots", Description: "ship speed"},
	{Name: "wind_speed_true", Kind: KindFloat, Bounds: bounds(0, 100), Units: "m/s", Description: "true wind speed"},
	{Name: ColRegionID, Kind: KindChar, Role: RoleFileMetadata, Description: "region classification"},
	{Name: ColWOCECO2Water, Kind: KindChar, Role: RoleUser, QCFlag: true, Description: "WOCE flag for aqueous CO2"},
	{Name: ColWOCECO2Atm, Kind: KindChar, Role: RoleUser, QCFlag: true, Description: "WOCE flag for atmospheric CO2"},
}

// Default returns the standard CO2 cruise column catalog.
func Default() *Catalog {
	c, err := New(defaultColumns...)
	if err != nil {
		panic("catalog: invalid default catalog: " + err.Error())
	}
	return c
}
