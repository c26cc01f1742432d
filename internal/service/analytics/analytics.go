package analytics

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/verdantcart/storefront/internal/models"
)

type Overview struct {
	Users    int64 `json:"users"`
	Products int64 `json:"products"`
	Sales    int64 `json:"total_sales"`
	Revenue  int64 `json:"total_revenue"`
}

type DailySales struct {
	Date    string `json:"date"`
	Sales   int64  `json:"sales"`
	Revenue int64  `json:"revenue"`
}

type Report struct {
	Overview Overview     `json:"analytics_data"`
	Daily    []DailySales `json:"chart_data"`
}

type Service struct {
	DB *gorm.DB
}

// Report aggregates store-wide totals plus per-day sales for the window.
func (s *Service) Report(ctx context.Context, start, end time.Time) (*Report, error) {
	var overview Overview

	if err := s.DB.WithContext(ctx).Model(&models.User{}).Count(&overview.Users).Error; err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&models.Product{}).Count(&overview.Products).Error; err != nil {
		return nil, err
	}

	row := struct {
		Sales   int64
		Revenue int64
	}{}
	if err := s.DB.WithContext(ctx).Model(&models.Order{}).
		Select("COUNT(*) AS sales, COALESCE(SUM(total_amount), 0) AS revenue").
		Scan(&row).Error; err != nil {
		return nil, err
	}
	overview.Sales = row.Sales
	overview.Revenue = row.Revenue

	var rows []orderRow
	if err := s.DB.WithContext(ctx).Model(&models.Order{}).
		Select("created_at, total_amount").
		Where("created_at BETWEEN ? AND ?", start, end).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	return &Report{Overview: overview, Daily: fillMissingDays(groupByDay(rows), start, end)}, nil
}

const dayFormat = "2006-01-02"

type orderRow struct {
	CreatedAt   time.Time
	TotalAmount int64
}

// groupByDay buckets orders by UTC calendar day in Go. Grouping on a SQL
// date expression is not portable: postgres hands the result back as a
// timestamp while sqlite returns text, and the two would key differently.
func groupByDay(rows []orderRow) map[string]DailySales {
	byDate := make(map[string]DailySales, len(rows))
	for _, r := range rows {
		key := r.CreatedAt.UTC().Format(dayFormat)
		d := byDate[key]
		d.Date = key
		d.Sales++
		d.Revenue += r.TotalAmount
		byDate[key] = d
	}
	return byDate
}

// fillMissingDays pads the series so the chart always covers every day of
// the window, zeroes included.
func fillMissingDays(byDate map[string]DailySales, start, end time.Time) []DailySales {
	var out []DailySales
	for day := start.UTC().Truncate(24 * time.Hour); !day.After(end); day = day.Add(24 * time.Hour) {
		key := day.Format(dayFormat)
		if d, ok := byDate[key]; ok {
			out = append(out, d)
		} else {
			out = append(out, DailySales{Date: key})
		}
	}
	return out
}
