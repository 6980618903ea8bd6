// Package geoip resolves client IPs to country and city with a MaxMind database.
package geoip

import (
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// MaxMind 读取 GeoLite2-City / GeoIP2-City mmdb 文件，Reader 本身并发安全
type MaxMind struct {
	db *geoip2.Reader
}

func Open(path string) (*MaxMind, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMind{db: db}, nil
}

// Lookup 查不到或 ip 非法时返回 nil
func (m *MaxMind) Lookup(ip string) (country, city *string) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, nil
	}
	rec, err := m.db.City(parsed)
	if err != nil {
		slog.Debug("geoip lookup failed", "ip", ip, "err", err)
		return nil, nil
	}
	if iso := rec.Country.IsoCode; iso != "" {
		country = &iso
	}
	if name := rec.City.Names["en"]; name != "" {
		city = &name
	}
	return country, city
}

func (m *MaxMind) Close() error {
	return m.db.Close()
}
