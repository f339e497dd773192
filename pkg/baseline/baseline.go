/*
 * Copyright 2025 SecureNet, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package baseline maintains rolling per-device statistical profiles used to
// detect behavioral deviations.
package baseline

import (
	"errors"
	"hash/fnv"
	"math"
	"sync"

	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

// ErrNotEstablished is the warm-up sentinel: a device with fewer than the
// minimum day count gets no numeric score, preventing false positives on
// young baselines.
var ErrNotEstablished = errors.New("baseline not yet established")

const (
	defaultShardCount = 16
	defaultWindowDays = 30
	defaultMinDays    = 7
	secondsPerDay     = 86400
	// maxZ stands in for an infinite deviation when the trailing variance
	// is zero and the sample moved.
	maxZ = 10.0
)

type metricKind int

const (
	metricBytesIn metricKind = iota
	metricBytesOut
	metricConnections
	metricDistinctPorts
	metricCount
)

// dayAgg accumulates one day's samples for one metric.
type dayAgg struct {
	day   int64
	count float64
	mean  float64
}

// profile is the memory-bounded rolling window for one device: a fixed-size
// ring of per-day aggregates per metric.
type profile struct {
	days [metricCount][]dayAgg
}

type shard struct {
	mu       sync.RWMutex
	profiles map[string]*profile
}

// Store holds behavioral baselines partitioned by device ID.
type Store struct {
	shards     []*shard
	windowDays int
	minDays    int
	logger     logger.Logger
}

// NewStore creates a baseline store. Zero window/min values get defaults.
func NewStore(windowDays, minDays int, log logger.Logger) *Store {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}

	if minDays <= 0 {
		minDays = defaultMinDays
	}

	shards := make([]*shard, defaultShardCount)
	for i := range shards {
		shards[i] = &shard{profiles: make(map[string]*profile)}
	}

	return &Store{
		shards:     shards,
		windowDays: windowDays,
		minDays:    minDays,
		logger:     log,
	}
}

func (s *Store) shardFor(deviceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))

	return s.shards[int(h.Sum32())%len(s.shards)]
}

// Observe folds one traffic sample into the device's rolling profile.
func (s *Store) Observe(deviceID string, sample models.TrafficSample) {
	sh := s.shardFor(deviceID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	p, ok := sh.profiles[deviceID]
	if !ok {
		p = &profile{}
		sh.profiles[deviceID] = p
	}

	day := sample.Timestamp.Unix() / secondsPerDay

	for kind, value := range sampleValues(sample) {
		s.observeMetric(p, metricKind(kind), day, value)
	}
}

func (s *Store) observeMetric(p *profile, kind metricKind, day int64, value float64) {
	window := p.days[kind]

	if n := len(window); n > 0 && window[n-1].day == day {
		agg := &window[n-1]
		agg.count++
		agg.mean += (value - agg.mean) / agg.count

		return
	}

	window = append(window, dayAgg{day: day, count: 1, mean: value})

	// Older days are evicted, not merely ignored, keeping memory bounded
	// regardless of traffic volume.
	if len(window) > s.windowDays {
		window = window[len(window)-s.windowDays:]
	}

	p.days[kind] = window
}

// Deviation holds per-metric z-scores for one sample against the device's
// trailing baseline.
type Deviation struct {
	BytesIn       float64 `json:"bytes_in"`
	BytesOut      float64 `json:"bytes_out"`
	Connections   float64 `json:"connections"`
	DistinctPorts float64 `json:"distinct_ports"`
}

// Max returns the largest absolute z-score across metrics.
func (d Deviation) Max() float64 {
	m := math.Abs(d.BytesIn)

	for _, v := range []float64{d.BytesOut, d.Connections, d.DistinctPorts} {
		if math.Abs(v) > m {
			m = math.Abs(v)
		}
	}

	return m
}

// Deviation scores a sample against the trailing mean/variance of the
// device's day aggregates. Devices below the minimum day count return
// ErrNotEstablished rather than a numeric score.
func (s *Store) Deviation(deviceID string, sample models.TrafficSample) (Deviation, error) {
	sh := s.shardFor(deviceID)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	p, ok := sh.profiles[deviceID]
	if !ok {
		return Deviation{}, ErrNotEstablished
	}

	values := sampleValues(sample)

	var out [metricCount]float64

	for kind := 0; kind < int(metricCount); kind++ {
		z, err := zScore(p.days[kind], s.minDays, values[kind])
		if err != nil {
			return Deviation{}, err
		}

		out[kind] = z
	}

	return Deviation{
		BytesIn:       out[metricBytesIn],
		BytesOut:      out[metricBytesOut],
		Connections:   out[metricConnections],
		DistinctPorts: out[metricDistinctPorts],
	}, nil
}

// zScore treats day means as the sample population. Variance is computed
// directly from the aggregates and can never go negative.
func zScore(window []dayAgg, minDays int, value float64) (float64, error) {
	if len(window) < minDays {
		return 0, ErrNotEstablished
	}

	var mean float64
	for i := range window {
		mean += window[i].mean
	}

	mean /= float64(len(window))

	var variance float64
	for i := range window {
		d := window[i].mean - mean
		variance += d * d
	}

	variance /= float64(len(window))

	if variance <= 0 {
		if value == mean {
			return 0, nil
		}

		return math.Copysign(maxZ, value-mean), nil
	}

	z := (value - mean) / math.Sqrt(variance)

	if z > maxZ {
		z = maxZ
	} else if z < -maxZ {
		z = -maxZ
	}

	return z, nil
}

func sampleValues(sample models.TrafficSample) [metricCount]float64 {
	return [metricCount]float64{
		metricBytesIn:       sample.BytesIn,
		metricBytesOut:      sample.BytesOut,
		metricConnections:   sample.Connections,
		metricDistinctPorts: sample.DistinctPorts,
	}
}
