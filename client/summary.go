package client

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jxsl13/udprtt/protocol"
)

// Summary contains the statistics of a finished session.
// RTT values are in milliseconds.
type Summary struct {
	State     protocol.ConnState `json:"state"`
	Connected bool               `json:"connected"`

	Sent     int     `json:"sent"`
	Received int     `json:"received"`
	Lost     int     `json:"lost"`
	LossRate float64 `json:"loss_rate"`

	MaxRTT    float64 `json:"max_rtt_ms"`
	MinRTT    float64 `json:"min_rtt_ms"`
	MeanRTT   float64 `json:"mean_rtt_ms"`
	StdDevRTT float64 `json:"stddev_rtt_ms"`

	ServerResponseTime time.Duration `json:"server_response_time"`
	Duration           time.Duration `json:"duration"`
}

// Summarize computes the statistics of the rtt samples (ms) out of sent attempts.
func Summarize(samples []float64, sent int) Summary {
	s := Summary{
		Sent:     sent,
		Received: len(samples),
	}
	s.Lost = s.Sent - s.Received
	if s.Sent > 0 {
		s.LossRate = float64(s.Lost) / float64(s.Sent)
	}

	if len(samples) == 0 {
		return s
	}

	s.MaxRTT = samples[0]
	s.MinRTT = samples[0]
	sum := 0.0
	for _, rtt := range samples {
		s.MaxRTT = math.Max(s.MaxRTT, rtt)
		s.MinRTT = math.Min(s.MinRTT, rtt)
		sum += rtt
	}
	s.MeanRTT = sum / float64(len(samples))
	s.StdDevRTT = stdDev(samples, s.MeanRTT)
	return s
}

// sample standard deviation, 0 for less than two samples
func stdDev(samples []float64, mean float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	squares := 0.0
	for _, rtt := range samples {
		d := rtt - mean
		squares += d * d
	}
	return math.Sqrt(squares / float64(len(samples)-1))
}

// LossPercent returns the loss rate in percent.
func (s *Summary) LossPercent() float64 {
	return s.LossRate * 100
}

func (s *Summary) String() string {
	sb := strings.Builder{}
	sb.Grow(320)
	sb.WriteString("【Summary】\n")
	fmt.Fprintf(&sb, "Session state: %s\n", s.State)
	fmt.Fprintf(&sb, "Sent UDP packets: %d\n", s.Sent)
	fmt.Fprintf(&sb, "Received UDP packets: %d\n", s.Received)
	fmt.Fprintf(&sb, "Packet loss rate: %.2f%%\n", s.LossPercent())
	fmt.Fprintf(&sb, "Max RTT: %.2f ms\n", s.MaxRTT)
	fmt.Fprintf(&sb, "Min RTT: %.2f ms\n", s.MinRTT)
	fmt.Fprintf(&sb, "Average RTT: %.2f ms\n", s.MeanRTT)
	fmt.Fprintf(&sb, "RTT standard deviation: %.2f ms\n", s.StdDevRTT)
	fmt.Fprintf(&sb, "Server response time: %.2f seconds\n", s.ServerResponseTime.Seconds())
	fmt.Fprintf(&sb, "Session duration: %.2f seconds\n", s.Duration.Seconds())
	return sb.String()
}
