package domain

import "time"

// TicketStats aggregates the admin dashboard figures. Averages are in hours.
type TicketStats struct {
	Total                 int
	ByStatus              map[TicketStatus]int
	ByPriority            map[TicketPriority]int
	UnreadByAdmin         int
	AverageResponseTime   float64
	AverageResolutionTime float64
}

// ComputeStats scans tickets once. Response time is measured to the first
// admin reply and only counts tickets that have one; resolution time is
// updatedAt minus createdAt over RESOLVED and CLOSED tickets.
func ComputeStats(tickets []Ticket) TicketStats {
	stats := TicketStats{
		Total:      len(tickets),
		ByStatus:   make(map[TicketStatus]int, len(TicketStatuses)),
		ByPriority: make(map[TicketPriority]int, len(TicketPriorities)),
	}
	for _, status := range TicketStatuses {
		stats.ByStatus[status] = 0
	}
	for _, priority := range TicketPriorities {
		stats.ByPriority[priority] = 0
	}

	var responseTotal, resolutionTotal time.Duration
	var responseCount, resolutionCount int

	for i := range tickets {
		ticket := &tickets[i]
		stats.ByStatus[ticket.Status]++
		stats.ByPriority[ticket.Priority]++
		if ticket.UnreadForAdmin() {
			stats.UnreadByAdmin++
		}
		if first := ticket.FirstAdminReply(); first != nil {
			responseTotal += first.CreatedAt.Sub(ticket.CreatedAt)
			responseCount++
		}
		if ticket.Status == TicketStatusResolved || ticket.Status == TicketStatusClosed {
			resolutionTotal += ticket.UpdatedAt.Sub(ticket.CreatedAt)
			resolutionCount++
		}
	}

	stats.AverageResponseTime = averageHours(responseTotal, responseCount)
	stats.AverageResolutionTime = averageHours(resolutionTotal, resolutionCount)
	return stats
}

func averageHours(total time.Duration, count int) float64 {
	if count == 0 {
		return 0
	}
	return total.Hours() / float64(count)
}
