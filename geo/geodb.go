// Package geo decides allow/deny from a request's source address: operator
// blocklist, allowlist, and country based blocking over a pluggable
// geolocation resolver.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/rs/zerolog"

	"warden/ipaddresses"
)

const countryDataCacheName = "geoipdatacache.json"

// Resolver resolves an IP address to an ISO 3166-1 alpha-2 country code. An
// empty code means the country is unknown. Implementations backed by an
// external service must honor the context deadline.
type Resolver interface {
	CountryCode(ctx context.Context, ip string) (string, error)
}

// IPRange maps one inclusive IP range to a country code.
type IPRange struct {
	StartIP     uint32 `json:"startIp"`
	EndIP       uint32 `json:"endIp"`
	CountryCode string `json:"countryCode"`
}

// RangeDB is a local country database over non-overlapping IP ranges. It
// implements Resolver, never blocks, and keeps its last good data set cached
// on disk.
type RangeDB interface {
	Resolver
	PutRanges(ranges []IPRange) error
}

type rangeDBImpl struct {
	tree   atomic.Value // *btree.BTree
	logger zerolog.Logger
	fs     FileSystem
}

// NewRangeDB instantiates the local country database, restoring cached data
// if available.
func NewRangeDB(logger zerolog.Logger, fs FileSystem) RangeDB {
	db := &rangeDBImpl{logger: logger, fs: fs}
	db.tree.Store(btree.New(2))

	if ranges, err := db.readCache(); err == nil {
		db.swapTree(ranges)
	}

	return db
}

// PutRanges validates and installs a new data set, replacing the previous one
// atomically. Lookups in flight keep reading the old tree.
func (db *rangeDBImpl) PutRanges(ranges []IPRange) (err error) {
	if err = validateRanges(ranges); err != nil {
		db.logger.Err(err).Msg("Error while validating country data set")
		return
	}

	if err = db.writeCache(ranges); err != nil {
		db.logger.Err(err).Msg("Error while writing country data set to cache")
		err = nil
	}

	db.swapTree(ranges)
	return
}

// CountryCode implements Resolver on the local tree. The data set does not
// contain reserved address space, so misses there are expected.
func (db *rangeDBImpl) CountryCode(ctx context.Context, ip string) (string, error) {
	addr, err := ipaddresses.ParseIPv4(ip)
	if err != nil {
		return "", err
	}

	tree := db.tree.Load().(*btree.BTree)

	item := tree.Get(rangeNode{StartIP: addr, EndIP: addr})
	if item == nil {
		return "", nil
	}

	node := item.(rangeNode)
	if len(node.CountryCode) != 2 {
		return "", nil
	}

	return node.CountryCode, nil
}

func (db *rangeDBImpl) swapTree(ranges []IPRange) {
	tree := btree.New(2)
	for _, r := range ranges {
		tree.ReplaceOrInsert(rangeNode{
			StartIP:     r.StartIP,
			EndIP:       r.EndIP,
			CountryCode: strings.ToUpper(strings.TrimSpace(r.CountryCode)),
		})
	}

	db.tree.Store(tree)
}

func (db *rangeDBImpl) writeCache(ranges []IPRange) (err error) {
	data, err := json.Marshal(ranges)
	if err != nil {
		return
	}

	return db.fs.WriteFile(countryDataCacheName, data)
}

func (db *rangeDBImpl) readCache() (ranges []IPRange, err error) {
	data, err := db.fs.ReadFile(countryDataCacheName)
	if err != nil {
		return
	}

	err = json.Unmarshal(data, &ranges)
	return
}

func validateRanges(ranges []IPRange) (err error) {
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].StartIP < ranges[j].StartIP
	})

	for i, curr := range ranges {
		if curr.StartIP > curr.EndIP {
			return fmt.Errorf("country data record (%s, %s, %s) has start greater than end",
				ipaddresses.ToOctets(curr.StartIP), ipaddresses.ToOctets(curr.EndIP), curr.CountryCode)
		}

		if i == 0 {
			continue
		}

		prev := ranges[i-1]
		if curr.StartIP <= prev.EndIP {
			return fmt.Errorf("overlap between country data records (%s, %s, %s) and (%s, %s, %s)",
				ipaddresses.ToOctets(prev.StartIP), ipaddresses.ToOctets(prev.EndIP), prev.CountryCode,
				ipaddresses.ToOctets(curr.StartIP), ipaddresses.ToOctets(curr.EndIP), curr.CountryCode)
		}
	}

	return
}

// rangeNode is the btree item. Point lookups insert a single-address node and
// rely on Less treating overlapping ranges as equal.
type rangeNode struct {
	StartIP     uint32
	EndIP       uint32
	CountryCode string
}

func (n rangeNode) Less(other btree.Item) bool {
	o := other.(rangeNode)
	return n.StartIP < o.StartIP && n.EndIP < o.EndIP
}
