package store

import (
	"sort"
	"strings"

	"mcpreg/internal/domain"
)

func matchesFilter(server domain.Server, filter domain.ListFilter) bool {
	if filter.Status != "" && server.Status.Kind != filter.Status {
		return false
	}
	if len(filter.Tags) > 0 {
		if filter.MatchAllTags {
			if !server.HasAllTags(filter.Tags) {
				return false
			}
		} else if !server.HasAnyTag(filter.Tags) {
			return false
		}
	}
	if filter.Search != "" && !matchesSearch(server, filter.Search, nil) {
		return false
	}
	if !filter.CreatedAfter.IsZero() && server.CreatedAt.Before(filter.CreatedAfter) {
		return false
	}
	if !filter.CreatedBefore.IsZero() && server.CreatedAt.After(filter.CreatedBefore) {
		return false
	}
	if !filter.UpdatedAfter.IsZero() && server.UpdatedAt.Before(filter.UpdatedAfter) {
		return false
	}
	if !filter.UpdatedBefore.IsZero() && server.UpdatedAt.After(filter.UpdatedBefore) {
		return false
	}
	return true
}

// matchesSearch is a case-insensitive substring match. With no explicit
// fields it scans name and description.
func matchesSearch(server domain.Server, text string, fields []string) bool {
	needle := strings.ToLower(text)
	if len(fields) == 0 {
		fields = []string{"name", "description"}
	}
	for _, field := range fields {
		var haystack string
		switch field {
		case "name":
			haystack = server.Name
		case "description":
			haystack = server.Description
		case "command":
			haystack = server.Configuration.Command
		case "tags":
			haystack = strings.Join(server.Tags, " ")
		default:
			continue
		}
		if strings.Contains(strings.ToLower(haystack), needle) {
			return true
		}
	}
	return false
}

// sortServers orders in place; ties always break by id ascending so results
// are deterministic across runs.
func sortServers(servers []domain.Server, field domain.SortField, order domain.SortOrder) {
	less := func(a, b domain.Server) bool {
		switch field {
		case domain.SortByCreatedAt:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case domain.SortByUpdatedAt:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		case domain.SortByStatus:
			if a.Status.Kind != b.Status.Kind {
				return a.Status.Kind.Rank() < b.Status.Kind.Rank()
			}
		default:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(servers, func(i, j int) bool {
		if order == domain.SortDesc {
			return less(servers[j], servers[i])
		}
		return less(servers[i], servers[j])
	})
}

// paginate slices out a 1-indexed page; out-of-range pages come back empty.
func paginate(servers []domain.Server, page domain.Page) []domain.Server {
	if page.Limit <= 0 {
		return servers
	}
	number := page.Number
	if number < 1 {
		number = 1
	}
	start := (number - 1) * page.Limit
	if start >= len(servers) {
		return []domain.Server{}
	}
	end := start + page.Limit
	if end > len(servers) {
		end = len(servers)
	}
	return servers[start:end]
}
