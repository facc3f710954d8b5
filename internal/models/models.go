package models

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Reservation is one line-item of a takeout order. Items sharing OrderID
// belong to the same order; RowID identifies the line in the remote sheet.
type Reservation struct {
	OrderID       string  `json:"orderId"`
	RowID         int     `json:"rowId"`
	CustomerName  string  `json:"customerName"`
	Phone         string  `json:"phone"`
	Email         string  `json:"email,omitempty"`
	PickupDate    string  `json:"pickupDate"`
	PickupTime    string  `json:"pickupTime"`
	ItemName      string  `json:"itemName"`
	Quantity      int     `json:"quantity"`
	Amount        float64 `json:"amount"`
	TotalAmount   float64 `json:"totalAmount"`
	IsCompleted   bool    `json:"isCompleted"`
	Memo          string  `json:"memo,omitempty"`
	HandoverStaff string  `json:"handoverStaff,omitempty"`
}

// OrderGroup is the derived view of all line-items of one order.
// Header fields come from the first item seen for the order.
type OrderGroup struct {
	OrderID      string        `json:"orderId"`
	CustomerName string        `json:"customerName"`
	Phone        string        `json:"phone"`
	PickupDate   string        `json:"pickupDate"`
	PickupTime   string        `json:"pickupTime"`
	TotalAmount  float64       `json:"totalAmount"`
	Items        []Reservation `json:"items"`
}

// IsCompleted reports whether every item of the order has been handed over.
func (g *OrderGroup) IsCompleted() bool {
	for _, it := range g.Items {
		if !it.IsCompleted {
			return false
		}
	}
	return true
}

type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

var (
	reDateISO   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reDateSlash = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)
	reDateUS    = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// fallback layouts for free-text dates coming out of the sheet
var looseLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC3339,
}

// NormalizeDate converts the textual date formats the sheet produces to
// YYYY-MM-DD. Unparsable input is returned unchanged, never an error.
func NormalizeDate(s string) string {
	if s == "" {
		return ""
	}
	if reDateISO.MatchString(s) {
		return s
	}
	if reDateSlash.MatchString(s) {
		return strings.ReplaceAll(s, "/", "-")
	}
	if reDateUS.MatchString(s) {
		p := strings.Split(s, "/")
		return p[2] + "-" + p[0] + "-" + p[1]
	}
	for _, layout := range looseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// Today formats the caller's current local date the way NormalizeDate
// emits dates, so the two are directly comparable.
func Today(now time.Time) string {
	return now.Format("2006-01-02")
}

// GroupByOrder partitions reservations by order, preserving first-seen
// item order inside each group, and sorts the groups newest pickup first.
func GroupByOrder(list []Reservation) []OrderGroup {
	index := make(map[string]int, len(list))
	groups := make([]OrderGroup, 0, len(list))

	for _, r := range list {
		i, ok := index[r.OrderID]
		if !ok {
			i = len(groups)
			index[r.OrderID] = i
			groups = append(groups, OrderGroup{
				OrderID:      r.OrderID,
				CustomerName: r.CustomerName,
				Phone:        r.Phone,
				PickupDate:   r.PickupDate,
				PickupTime:   r.PickupTime,
				TotalAmount:  r.TotalAmount,
			})
		}
		groups[i].Items = append(groups[i].Items, r)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		ki := NormalizeDate(groups[i].PickupDate) + " " + groups[i].PickupTime
		kj := NormalizeDate(groups[j].PickupDate) + " " + groups[j].PickupTime
		return ki > kj
	})
	return groups
}

// Filter names accepted by Filter.
const (
	FilterAll       = "all"
	FilterToday     = "today"
	FilterPending   = "pending"
	FilterCompleted = "completed"
)

// Filter returns the subset of list matching the named predicate. today
// must be a normalized YYYY-MM-DD date. Unknown names behave like "all".
func Filter(list []Reservation, name, today string) []Reservation {
	out := make([]Reservation, 0, len(list))
	for _, r := range list {
		switch name {
		case FilterToday:
			if NormalizeDate(r.PickupDate) != today {
				continue
			}
		case FilterPending:
			if r.IsCompleted {
				continue
			}
		case FilterCompleted:
			if !r.IsCompleted {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func Count(list []Reservation) Stats {
	s := Stats{Total: len(list)}
	for _, r := range list {
		if r.IsCompleted {
			s.Completed++
		} else {
			s.Pending++
		}
	}
	return s
}

// HasPendingToday reports whether any of today's orders still has an item
// waiting for handover. Drives the warning banner in the dashboard.
func HasPendingToday(list []Reservation, today string) bool {
	for _, g := range GroupByOrder(Filter(list, FilterToday, today)) {
		if !g.IsCompleted() {
			return true
		}
	}
	return false
}
