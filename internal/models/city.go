package models

// City is a catalog city that ISPs can serve.
type City struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	State        string        `json:"state"`
	Coordinates  Coordinates   `json:"coordinates"`
	Population   int           `json:"population"`
	AreaCoverage []Coordinates `json:"area_coverage,omitempty"` // polygon points for the coverage map
}

// Coordinates is a WGS84 latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DisplayName returns "Name, State" as shown in city suggestions.
func (c City) DisplayName() string {
	if c.State == "" {
		return c.Name
	}
	return c.Name + ", " + c.State
}

// RecentSearch records a city the user searched for.
type RecentSearch struct {
	CityID    string `json:"city_id"`
	CityName  string `json:"city_name"`
	Timestamp string `json:"timestamp"` // RFC3339
}
