package gifsicle

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/aidecameron/gifcut/internal/domain/port"
)

// parseInfo scrapes gifsicle --info output. The interesting lines look like:
//
//	* in.gif 42 images
//	  logical screen 480x270
//	  + image #0 480x270
//	  + image #1 120x80 at 10,20
//	    disposal asis delay 0.05s
//
// A frame smaller than the logical screen, or placed off origin, means the
// file is frame-optimized and must be unoptimized before per-frame work.
func parseInfo(out string) (*port.Metadata, error) {
	meta := &port.Metadata{}

	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case strings.HasPrefix(line, "*") && strings.HasSuffix(line, "images"):
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				if n, err := strconv.Atoi(fields[len(fields)-2]); err == nil {
					meta.FrameCount = n
				}
			}
		case strings.HasPrefix(line, "*") && strings.HasSuffix(line, "image"):
			meta.FrameCount = 1
		case strings.HasPrefix(line, "logical screen "):
			if w, h, err := parseDims(strings.TrimPrefix(line, "logical screen ")); err == nil {
				meta.Width, meta.Height = w, h
			}
		case strings.HasPrefix(line, "+ image #"):
			if w, h, offset := parseImageLine(line); offset || (meta.Width > 0 && (w != meta.Width || h != meta.Height)) {
				meta.Optimized = true
			}
		}

		if i := strings.Index(line, "delay "); i >= 0 {
			tok := strings.Fields(line[i+len("delay "):])
			if len(tok) > 0 {
				if d, err := parseDelaySeconds(tok[0]); err == nil {
					meta.Delays = append(meta.Delays, d)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if meta.FrameCount == 0 {
		return nil, fmt.Errorf("no image count in tool output")
	}
	return meta, nil
}

// parseImageLine reads "+ image #N WxH" or "+ image #N WxH at X,Y".
func parseImageLine(line string) (w, h int, offset bool) {
	fields := strings.Fields(line)
	for i, f := range fields {
		if strings.Contains(f, "x") && w == 0 {
			if pw, ph, err := parseDims(f); err == nil {
				w, h = pw, ph
			}
		}
		if f == "at" && i+1 < len(fields) && fields[i+1] != "0,0" {
			offset = true
		}
	}
	return w, h, offset
}

func parseDims(s string) (int, int, error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad dimensions %q", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	h, err := strconv.Atoi(strings.Fields(parts[1])[0])
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

// StatsFromMetadata summarizes frame timing: totals, extremes, and the two
// most common frame rates with their counts. fileSize is passed through.
func StatsFromMetadata(meta *port.Metadata, fileSize int64) *entity.GifStats {
	stats := &entity.GifStats{
		FrameCount: meta.FrameCount,
		FileSize:   fileSize,
	}

	if len(meta.Delays) == 0 {
		return stats
	}

	counts := make(map[time.Duration]int)
	total := time.Duration(0)
	for _, d := range meta.Delays {
		total += d
		counts[d]++
	}
	stats.TotalDuration = total.Seconds()
	if total > 0 {
		stats.AvgFPS = float64(len(meta.Delays)) / total.Seconds()
	}

	type bucket struct {
		delay time.Duration
		count int
	}
	buckets := make([]bucket, 0, len(counts))
	for d, n := range counts {
		buckets = append(buckets, bucket{d, n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].delay < buckets[j].delay
	})

	fps := func(d time.Duration) float64 {
		if d <= 0 {
			return 100.0 // zero-delay frames render at the decoder floor
		}
		return 1.0 / d.Seconds()
	}

	minFPS, maxFPS := fps(buckets[0].delay), fps(buckets[0].delay)
	for _, b := range buckets {
		f := fps(b.delay)
		if f < minFPS {
			minFPS = f
		}
		if f > maxFPS {
			maxFPS = f
		}
	}
	stats.MinFPS, stats.MaxFPS = minFPS, maxFPS

	m1 := fps(buckets[0].delay)
	c1 := buckets[0].count
	stats.Mode1FPS, stats.Mode1Count = &m1, &c1
	if len(buckets) > 1 {
		m2 := fps(buckets[1].delay)
		c2 := buckets[1].count
		stats.Mode2FPS, stats.Mode2Count = &m2, &c2
	}
	return stats
}
