package model

// FinalRecord is one row of the consolidated table. The final coordinates
// are the direct match when present, otherwise the near match.
type FinalRecord struct {
	ID             string `csv:"id"`
	Address        string `csv:"address"`
	MatchedAddress string `csv:"matched_address"`
	Latitude       string `csv:"latitude"`
	Longitude      string `csv:"longitude"`
	Status         Status `csv:"status"`
	NearAddress    string `csv:"near_address"`
	NearLatitude   string `csv:"near_latitude"`
	NearLongitude  string `csv:"near_longitude"`
	FinalLatitude  string `csv:"final_latitude"`
	FinalLongitude string `csv:"final_longitude"`
}

// Finalize derives the consolidated record for a result row. It is a pure
// merge: outcomes are copied, never re-derived.
func Finalize(r Row) FinalRecord {
	f := FinalRecord{
		ID:             r.ID,
		Address:        r.Address,
		MatchedAddress: r.MatchedAddress,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		Status:         r.Status,
		NearAddress:    r.NearAddress,
		NearLatitude:   r.NearLatitude,
		NearLongitude:  r.NearLongitude,
	}
	switch {
	case r.Latitude != "" && r.Longitude != "":
		f.FinalLatitude, f.FinalLongitude = r.Latitude, r.Longitude
	case r.HasNear():
		f.FinalLatitude, f.FinalLongitude = r.NearLatitude, r.NearLongitude
	}
	return f
}

// HasFinal reports whether the record ended up with coordinates.
func (f FinalRecord) HasFinal() bool {
	return f.FinalLatitude != "" && f.FinalLongitude != ""
}

// PermanentMiss reports whether the record is a genuine failure: it has an
// address but no coordinates from any pass.
func (f FinalRecord) PermanentMiss() bool {
	return !f.HasFinal() && f.Status != StatusEmptyAddress
}
