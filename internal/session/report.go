package session

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ispfinder/ispfinder/internal/models"
)

// Winners names the ISP that leads each comparison category. Fields are
// empty when the comparison is empty.
type Winners struct {
	Price    string `json:"price,omitempty"`
	Speed    string `json:"speed,omitempty"`
	Coverage string `json:"coverage,omitempty"`
	Rating   string `json:"rating,omitempty"`
}

// FindWinners picks the cheapest plan, the fastest plan, the widest coverage
// and the best rating. The earlier item wins a tie.
func FindWinners(items []models.ComparisonItem) Winners {
	if len(items) == 0 {
		return Winners{}
	}

	price, speed, coverage, rating := items[0], items[0], items[0], items[0]
	for _, item := range items[1:] {
		if item.Plan.Price < price.Plan.Price {
			price = item
		}
		if item.Plan.Speed > speed.Plan.Speed {
			speed = item
		}
		if item.Coverage.Percentage > coverage.Coverage.Percentage {
			coverage = item
		}
		if item.ISP.Rating > rating.ISP.Rating {
			rating = item
		}
	}

	return Winners{
		Price:    price.ISP.ID,
		Speed:    speed.ISP.ID,
		Coverage: coverage.ISP.ID,
		Rating:   rating.ISP.ID,
	}
}

// YearlyCost is twelve months of subscription and equipment plus installation.
func YearlyCost(p models.Plan) float64 {
	return p.Price*12 + p.InstallationFee + p.EquipmentFee*12
}

// AverageMonthlyCost spreads the first-year cost over twelve months, rounded
// to the nearest unit.
func AverageMonthlyCost(p models.Plan) float64 {
	return math.Round(YearlyCost(p) / 12)
}

// ItemCost is the first-year cost breakdown of one comparison item.
type ItemCost struct {
	ISPID          string  `json:"isp_id"`
	PlanID         string  `json:"plan_id"`
	Yearly         float64 `json:"yearly"`
	MonthlyAverage float64 `json:"monthly_average"`
}

// Report is the comparison view: items, category winners and costs.
type Report struct {
	Items   []models.ComparisonItem `json:"items"`
	Winners Winners                 `json:"winners"`
	Costs   []ItemCost              `json:"costs"`
	Share   string                  `json:"share,omitempty"`
}

// BuildReport assembles the comparison report for items.
func BuildReport(items []models.ComparisonItem) Report {
	r := Report{
		Items:   items,
		Winners: FindWinners(items),
		Costs:   make([]ItemCost, 0, len(items)),
		Share:   ShareQuery(items),
	}
	for _, item := range items {
		r.Costs = append(r.Costs, ItemCost{
			ISPID:          item.ISP.ID,
			PlanID:         item.Plan.ID,
			Yearly:         YearlyCost(item.Plan),
			MonthlyAverage: AverageMonthlyCost(item.Plan),
		})
	}
	return r
}

// ExportText renders the comparison as a plain text document.
func ExportText(items []models.ComparisonItem) string {
	var b strings.Builder
	b.WriteString("=== ISP COMPARISON ===\n\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item.ISP.Name)
		fmt.Fprintf(&b, "   Plan: %s\n", item.Plan.Name)
		fmt.Fprintf(&b, "   Speed: %s Mbps\n", number(item.Plan.Speed))
		fmt.Fprintf(&b, "   Price: ₨%s/month\n", number(item.Plan.Price))
		fmt.Fprintf(&b, "   Coverage: %s%%\n", number(item.Coverage.Percentage))
		fmt.Fprintf(&b, "   Rating: %s/5 (%d reviews)\n", number(item.ISP.Rating), item.ISP.TotalReviews)
		b.WriteString("\n")
	}
	return b.String()
}

// ShareQuery encodes the compared ISP ids as "compare=a,b,c", or "" when
// nothing is compared.
func ShareQuery(items []models.ComparisonItem) string {
	if len(items) == 0 {
		return ""
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ISP.ID
	}
	return "compare=" + strings.Join(ids, ",")
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
