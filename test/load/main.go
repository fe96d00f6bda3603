package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Test configuration
type LoadTestConfig struct {
	Addr              string
	SystemID          string
	Password          string
	RequestsPerSecond int
	DurationSeconds   int
	Sessions          int
	Destination       string
}

// Stats tracking
type Stats struct {
	acceptedCount atomic.Int64
	rejectedCount atomic.Int64
	errorCount    atomic.Int64
	responseTimes []float64
	mu            sync.Mutex
}

func (s *Stats) addResponseTime(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimes = append(s.responseTimes, duration)
}

func (s *Stats) getResponseTimes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	times := make([]float64, len(s.responseTimes))
	copy(times, s.responseTimes)
	return times
}

const (
	cmdBindTransceiver     = 0x00000009
	cmdBindTransceiverResp = 0x80000009
	cmdSubmitSM            = 0x00000004
	cmdSubmitSMResp        = 0x80000004
	cmdDeliverSM           = 0x00000005
	cmdDeliverSMResp       = 0x80000005
	cmdUnbind              = 0x00000006
)

func header(length, id, status, seq uint32) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint32(b[0:4], length)
	binary.BigEndian.PutUint32(b[4:8], id)
	binary.BigEndian.PutUint32(b[8:12], status)
	binary.BigEndian.PutUint32(b[12:16], seq)
	return b
}

func bindPDU(seq uint32, systemID, password string) []byte {
	body := append([]byte(systemID), 0)
	body = append(body, []byte(password)...)
	body = append(body, 0)
	body = append(body, 0)          // system_type
	body = append(body, 0x34, 0, 0) // interface_version, ton, npi
	body = append(body, 0)          // address_range
	return append(header(uint32(16+len(body)), cmdBindTransceiver, 0, seq), body...)
}

func submitPDU(seq uint32, dest string) []byte {
	var body []byte
	body = append(body, 0)       // service_type
	body = append(body, 0, 0)    // source ton/npi
	body = append(body, []byte("48601123123")...)
	body = append(body, 0)
	body = append(body, 0, 0) // dest ton/npi
	body = append(body, []byte(dest)...)
	body = append(body, 0)
	body = append(body, 0, 0, 0) // esm_class, protocol_id, priority
	body = append(body, 0, 0)    // schedule, validity
	body = append(body, 1)       // registered_delivery
	body = append(body, 0, 0, 0) // replace, data_coding, default_msg_id
	msg := []byte("load test")
	body = append(body, byte(len(msg)))
	body = append(body, msg...)
	return append(header(uint32(16+len(body)), cmdSubmitSM, 0, seq), body...)
}

func readPDU(r io.Reader) (id, status, seq uint32, err error) {
	hdr := make([]byte, 16)
	if _, err = io.ReadFull(r, hdr); err != nil {
		return
	}
	length := binary.BigEndian.Uint32(hdr[0:4])
	id = binary.BigEndian.Uint32(hdr[4:8])
	status = binary.BigEndian.Uint32(hdr[8:12])
	seq = binary.BigEndian.Uint32(hdr[12:16])
	if length > 16 {
		if _, err = io.ReadFull(r, make([]byte, length-16)); err != nil {
			return
		}
	}
	return
}

// session runs one bound SMPP connection, acking deliver_sm traffic and
// pumping submits from the jobs channel.
func session(config LoadTestConfig, stats *Stats, jobs <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	conn, err := net.DialTimeout("tcp", config.Addr, 5*time.Second)
	if err != nil {
		stats.errorCount.Add(1)
		return
	}
	defer conn.Close()

	seq := uint32(0)
	seq++
	if _, err := conn.Write(bindPDU(seq, config.SystemID, config.Password)); err != nil {
		stats.errorCount.Add(1)
		return
	}
	if id, status, _, err := readPDU(conn); err != nil || id != cmdBindTransceiverResp || status != 0 {
		stats.errorCount.Add(1)
		return
	}

	pendingMu := sync.Mutex{}
	pending := make(map[uint32]time.Time)

	// reader: match submit responses, ack delivery receipts
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			id, status, rseq, err := readPDU(conn)
			if err != nil {
				return
			}
			switch id {
			case cmdSubmitSMResp:
				pendingMu.Lock()
				start, ok := pending[rseq]
				delete(pending, rseq)
				pendingMu.Unlock()
				if !ok {
					continue
				}
				stats.addResponseTime(time.Since(start).Seconds())
				if status == 0 {
					stats.acceptedCount.Add(1)
				} else {
					stats.rejectedCount.Add(1)
				}
			case cmdDeliverSM:
				// deliver_sm_resp with empty message_id body
				resp := append(header(17, cmdDeliverSMResp, 0, rseq), 0)
				if _, err := conn.Write(resp); err != nil {
					return
				}
			}
		}
	}()

	for range jobs {
		seq++
		pendingMu.Lock()
		pending[seq] = time.Now()
		pendingMu.Unlock()
		if _, err := conn.Write(submitPDU(seq, config.Destination)); err != nil {
			stats.errorCount.Add(1)
			return
		}
	}

	conn.Write(header(16, cmdUnbind, 0, seq+1))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	<-done
}

func calculatePercentile(times []float64, percentile float64) float64 {
	if len(times) == 0 {
		return 0
	}

	sorted := make([]float64, len(times))
	copy(sorted, times)

	for i := 0; i < len(sorted)-1; i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i] > sorted[j] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func main() {
	config := LoadTestConfig{
		Addr:              getEnvOrDefault("TARGET_ADDR", "localhost:2776"),
		SystemID:          getEnvOrDefault("SYSTEM_ID", "smppclient1"),
		Password:          getEnvOrDefault("PASSWORD", "password"),
		RequestsPerSecond: getEnvIntOrDefault("REQUESTS_PER_SECOND", 1000),
		DurationSeconds:   getEnvIntOrDefault("DURATION_SECONDS", 30),
		Sessions:          getEnvIntOrDefault("SESSIONS", 50),
		Destination:       getEnvOrDefault("DESTINATION", "13476841841"),
	}

	fmt.Println("Starting load test...")
	fmt.Printf("Target: %s\n", config.Addr)
	fmt.Printf("Total submits: %d\n", config.RequestsPerSecond*config.DurationSeconds)
	fmt.Printf("Target RPS: %d\n", config.RequestsPerSecond)
	fmt.Printf("Concurrent sessions: %d\n", config.Sessions)
	fmt.Printf("Duration: %d seconds\n", config.DurationSeconds)
	fmt.Println(strings.Repeat("-", 50))

	stats := &Stats{}
	jobs := make(chan struct{}, config.RequestsPerSecond)

	var wg sync.WaitGroup
	wg.Add(config.Sessions)
	for i := 0; i < config.Sessions; i++ {
		go session(config, stats, jobs, &wg)
	}

	start := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for second := 0; second < config.DurationSeconds; second++ {
		for i := 0; i < config.RequestsPerSecond; i++ {
			jobs <- struct{}{}
		}
		<-ticker.C
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start).Seconds()
	times := stats.getResponseTimes()
	accepted := stats.acceptedCount.Load()
	rejected := stats.rejectedCount.Load()
	errors := stats.errorCount.Load()
	total := accepted + rejected

	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Elapsed: %.1fs\n", elapsed)
	fmt.Printf("Answered submits: %d (%.0f/s)\n", total, float64(total)/elapsed)
	fmt.Printf("Accepted: %d\n", accepted)
	fmt.Printf("Rejected: %d\n", rejected)
	fmt.Printf("Errors: %d\n", errors)
	fmt.Printf("p50 latency: %.1fms\n", calculatePercentile(times, 0.50)*1000)
	fmt.Printf("p95 latency: %.1fms\n", calculatePercentile(times, 0.95)*1000)
	fmt.Printf("p99 latency: %.1fms\n", calculatePercentile(times, 0.99)*1000)
}
