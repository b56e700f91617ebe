package ledger

import "time"

// DailyCount is the number of transactions on one local calendar day.
type DailyCount struct {
	Date     string `json:"date"`
	Vehicles int    `json:"vehicles"`
}

// Stats summarises a ledger snapshot.
type Stats struct {
	TotalVehicles int          `json:"total_vehicles"`
	TotalRevenue  int64        `json:"total_revenue"`
	Daily         []DailyCount `json:"daily"`
}

// Summarize computes totals over records and per-day counts for the days calendar days
// ending at now (today first). Days are taken in now's location.
func Summarize(records []Record, now time.Time, days int) Stats {
	const dateLayout = "2006-01-02"

	st := Stats{TotalVehicles: len(records)}
	perDay := make(map[string]int)
	for _, rec := range records {
		st.TotalRevenue += rec.Amount
		perDay[rec.Timestamp.In(now.Location()).Format(dateLayout)]++
	}

	if days <= 0 {
		return st
	}
	st.Daily = make([]DailyCount, 0, days)
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -i).Format(dateLayout)
		st.Daily = append(st.Daily, DailyCount{Date: date, Vehicles: perDay[date]})
	}
	return st
}
