package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	s := fmt.Sprintf("%d", n)
	result := ""
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}

func formatPercent(part, total int64) string {
	if total == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(part)*100.0/float64(total))
}

func formatSeconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000.0)
}

func drawTableRow(columns []string, widths []int, border string) string {
	var row strings.Builder
	row.WriteString(border)
	for i, col := range columns {
		colLen := len(col)
		width := widths[i]

		if colLen > width {
			row.WriteString(col[:width])
		} else {
			padding := width - colLen
			if i == 0 && strings.HasPrefix(col, " ") {
				row.WriteString(col)
				row.WriteString(strings.Repeat(" ", padding))
			} else {
				leftPad := padding / 2
				rightPad := padding - leftPad
				row.WriteString(strings.Repeat(" ", leftPad))
				row.WriteString(col)
				row.WriteString(strings.Repeat(" ", rightPad))
			}
		}

		if i < len(columns)-1 {
			row.WriteString("│")
		}
	}
	row.WriteString(border)
	return row.String()
}

func drawTableDivider(widths []int, left, mid, right, fill string) string {
	var divider strings.Builder
	divider.WriteString(left)
	for i, width := range widths {
		divider.WriteString(strings.Repeat(fill, width))
		if i < len(widths)-1 {
			divider.WriteString(mid)
		}
	}
	divider.WriteString(right)
	return divider.String()
}

func realTimeReporter(ctx context.Context, stats *GlobalStats) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats.UpdateRPS()
			stats.UpdateBandwidthRate()
			printRealTimeStats(stats)
		}
	}
}

func printRealTimeStats(stats *GlobalStats) {
	elapsed := time.Since(stats.startTime)
	total := atomic.LoadInt64(&stats.TotalRequests)
	success2xx := atomic.LoadInt64(&stats.Success2xx)
	redirect3xx := atomic.LoadInt64(&stats.Redirect3xx)
	error4xx := atomic.LoadInt64(&stats.ClientError4xx)
	error5xx := atomic.LoadInt64(&stats.ServerError5xx)
	netErrors := atomic.LoadInt64(&stats.NetworkErrors)
	timeoutErrors := atomic.LoadInt64(&stats.TimeoutErrors)
	connectionErrors := atomic.LoadInt64(&stats.ConnectionErrors)
	totalBytes := atomic.LoadInt64(&stats.TotalBytes)
	mismatches := atomic.LoadInt64(&stats.StatusMismatches)
	activeRequests := stats.GetActiveRequests()
	currentRPS := stats.GetCurrentRPS()
	currentBWRate := stats.GetCurrentBWRate()

	fmt.Print("\033[H\033[J")

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Load Test Running - %s elapsed | RPS: %.1f | Active: %d/%d\n",
		formatDuration(elapsed), currentRPS, activeRequests, stats.baseConcurrency)
	fmt.Println(strings.Repeat("=", 80))

	stats.histogramMu.Lock()
	hasResponseTimes := stats.ResponseTimes.TotalCount() > 0
	var min, p50, p95, p99, max int64
	if hasResponseTimes {
		min = stats.ResponseTimes.Min()
		p50 = stats.ResponseTimes.ValueAtQuantile(50)
		p95 = stats.ResponseTimes.ValueAtQuantile(95)
		p99 = stats.ResponseTimes.ValueAtQuantile(99)
		max = stats.ResponseTimes.Max()
	}
	stats.histogramMu.Unlock()

	if hasResponseTimes {
		fmt.Println("\nRESPONSE TIMES (seconds)")
		widths := []int{9, 9, 9, 9, 9}
		fmt.Println(drawTableDivider(widths, "┌", "┬", "┐", "─"))
		fmt.Println(drawTableRow([]string{"Min", "P50", "P95", "P99", "Max"}, widths, "│"))
		fmt.Println(drawTableDivider(widths, "├", "┼", "┤", "─"))
		fmt.Println(drawTableRow([]string{
			formatSeconds(min), formatSeconds(p50), formatSeconds(p95), formatSeconds(p99), formatSeconds(max),
		}, widths, "│"))
		fmt.Println(drawTableDivider(widths, "└", "┴", "┘", "─"))
	}

	if total > 0 {
		fmt.Println("\nSTATUS CODES")
		widths := []int{17, 14, 14, 14, 14}
		fmt.Println(drawTableDivider(widths, "┌", "┬", "┐", "─"))
		fmt.Println(drawTableRow([]string{"2xx", "3xx", "4xx", "5xx", "Network"}, widths, "│"))
		fmt.Println(drawTableDivider(widths, "├", "┼", "┤", "─"))
		fmt.Println(drawTableRow([]string{
			fmt.Sprintf("%s (%s%%)", formatNumber(success2xx), formatPercent(success2xx, total)),
			fmt.Sprintf("%s (%s%%)", formatNumber(redirect3xx), formatPercent(redirect3xx, total)),
			fmt.Sprintf("%s (%s%%)", formatNumber(error4xx), formatPercent(error4xx, total)),
			fmt.Sprintf("%s (%s%%)", formatNumber(error5xx), formatPercent(error5xx, total)),
			fmt.Sprintf("%s (%s%%)", formatNumber(netErrors), formatPercent(netErrors, total)),
		}, widths, "│"))
		fmt.Println(drawTableDivider(widths, "└", "┴", "┘", "─"))

		if netErrors > 0 {
			otherNet := netErrors - timeoutErrors - connectionErrors
			if otherNet < 0 {
				otherNet = 0
			}
			fmt.Printf("  Network breakdown: Timeout=%s | Connection=%s | Other=%s\n",
				formatNumber(timeoutErrors), formatNumber(connectionErrors), formatNumber(otherNet))
		}

		fmt.Println("\nBANDWIDTH")
		fmt.Printf("  Total: %s | Rate: %.1f MB/s\n", formatBytes(totalBytes), currentBWRate/1024/1024)

		if mismatches > 0 {
			fmt.Println("\nWARNINGS")
			fmt.Printf("  Status Mismatches: %s requests (%s%%)\n", formatNumber(mismatches), formatPercent(mismatches, total))
		}
	}

	fmt.Println(strings.Repeat("=", 80))
}

func printFinalReport(stats *GlobalStats, duration time.Duration) {
	total := atomic.LoadInt64(&stats.TotalRequests)
	success2xx := atomic.LoadInt64(&stats.Success2xx)
	redirect3xx := atomic.LoadInt64(&stats.Redirect3xx)
	error4xx := atomic.LoadInt64(&stats.ClientError4xx)
	error5xx := atomic.LoadInt64(&stats.ServerError5xx)
	netErrors := atomic.LoadInt64(&stats.NetworkErrors)
	timeoutErrors := atomic.LoadInt64(&stats.TimeoutErrors)
	connectionErrors := atomic.LoadInt64(&stats.ConnectionErrors)
	mismatches := atomic.LoadInt64(&stats.StatusMismatches)
	totalBytes := atomic.LoadInt64(&stats.TotalBytes)

	successful := success2xx
	failed := error4xx + error5xx + netErrors

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("                         LOAD TEST FINAL REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Test Duration:  %s\n", formatDuration(duration))
	fmt.Printf("Started:        %s\n", stats.startTime.Format("2006-01-02 15:04:05"))
	fmt.Printf("Ended:          %s\n", stats.startTime.Add(duration).Format("2006-01-02 15:04:05"))
	fmt.Printf("Total Requests: %s\n", formatNumber(total))
	fmt.Printf("Successful:     %s (%s%%)\n", formatNumber(successful), formatPercent(successful, total))
	fmt.Printf("Failed:         %s (%s%%)\n", formatNumber(failed), formatPercent(failed, total))

	stats.histogramMu.Lock()
	hasResponseTimes := stats.ResponseTimes.TotalCount() > 0
	var min, p50, p75, p95, p99, max int64
	if hasResponseTimes {
		min = stats.ResponseTimes.Min()
		p50 = stats.ResponseTimes.ValueAtQuantile(50)
		p75 = stats.ResponseTimes.ValueAtQuantile(75)
		p95 = stats.ResponseTimes.ValueAtQuantile(95)
		p99 = stats.ResponseTimes.ValueAtQuantile(99)
		max = stats.ResponseTimes.Max()
	}
	stats.histogramMu.Unlock()

	if hasResponseTimes {
		fmt.Println("\nRESPONSE TIMES (seconds)")
		widths := []int{9, 9, 9, 9, 9, 12}
		fmt.Println(drawTableDivider(widths, "┌", "┬", "┐", "─"))
		fmt.Println(drawTableRow([]string{"Min", "P50", "P75", "P95", "P99", "Max"}, widths, "│"))
		fmt.Println(drawTableDivider(widths, "├", "┼", "┤", "─"))
		fmt.Println(drawTableRow([]string{
			formatSeconds(min), formatSeconds(p50), formatSeconds(p75), formatSeconds(p95), formatSeconds(p99), formatSeconds(max),
		}, widths, "│"))
		fmt.Println(drawTableDivider(widths, "└", "┴", "┘", "─"))
	}

	fmt.Println("\nSTATUS CODE DISTRIBUTION")
	widths := []int{22, 10, 14}
	fmt.Println(drawTableDivider(widths, "┌", "┬", "┐", "─"))
	fmt.Println(drawTableRow([]string{"Category", "Count", "Percentage"}, widths, "│"))
	fmt.Println(drawTableDivider(widths, "├", "┼", "┤", "─"))
	fmt.Println(drawTableRow([]string{"2xx Success", formatNumber(success2xx), formatPercent(success2xx, total) + "%"}, widths, "│"))
	fmt.Println(drawTableRow([]string{"3xx Redirect", formatNumber(redirect3xx), formatPercent(redirect3xx, total) + "%"}, widths, "│"))
	fmt.Println(drawTableRow([]string{"4xx Client Error", formatNumber(error4xx), formatPercent(error4xx, total) + "%"}, widths, "│"))
	fmt.Println(drawTableRow([]string{"5xx Server Error", formatNumber(error5xx), formatPercent(error5xx, total) + "%"}, widths, "│"))
	fmt.Println(drawTableRow([]string{"Network Errors", formatNumber(netErrors), formatPercent(netErrors, total) + "%"}, widths, "│"))
	fmt.Println(drawTableRow([]string{"    - Timeout", formatNumber(timeoutErrors), formatPercent(timeoutErrors, total) + "%"}, widths, "│"))
	fmt.Println(drawTableRow([]string{"    - Connection", formatNumber(connectionErrors), formatPercent(connectionErrors, total) + "%"}, widths, "│"))
	fmt.Println(drawTableDivider(widths, "└", "┴", "┘", "─"))

	fmt.Println("\nTHROUGHPUT")
	avgRPS := stats.GetAverageRPS(duration)
	avgBW := float64(totalBytes) / duration.Seconds()
	widths = []int{22, 26}
	fmt.Println(drawTableDivider(widths, "┌", "┬", "┐", "─"))
	fmt.Println(drawTableRow([]string{"Metric", "Value"}, widths, "│"))
	fmt.Println(drawTableDivider(widths, "├", "┼", "┤", "─"))
	fmt.Println(drawTableRow([]string{"Average RPS", fmt.Sprintf("%.1f requests/sec", avgRPS)}, widths, "│"))
	fmt.Println(drawTableRow([]string{"Total Bandwidth", formatBytes(totalBytes)}, widths, "│"))
	fmt.Println(drawTableRow([]string{"Average Bandwidth", fmt.Sprintf("%.1f MB/sec", avgBW/1024/1024)}, widths, "│"))
	fmt.Println(drawTableDivider(widths, "└", "┴", "┘", "─"))

	if mismatches > 0 {
		fmt.Println("\nSTATUS CODE MISMATCHES")
		fmt.Printf("Total Mismatches: %s (%s%% of all requests)\n\n", formatNumber(mismatches), formatPercent(mismatches, total))

		stats.mismatchMu.Lock()
		mismatchList := make([]MismatchDetail, len(stats.Mismatches))
		copy(mismatchList, stats.Mismatches)
		stats.mismatchMu.Unlock()

		limit := len(mismatchList)
		if limit > 20 {
			limit = 20
		}
		for _, m := range mismatchList[:limit] {
			fmt.Printf("  %s: expected %d, got %d (request %s)\n", m.URL, m.ExpectedStatus, m.ActualStatus, m.RequestID)
		}
		if len(mismatchList) > limit {
			fmt.Printf("  ... and %d more\n", len(mismatchList)-limit)
		}
	}

	fmt.Println(strings.Repeat("=", 80))
}
