package domain

import "time"

// ServerConfiguration describes how a server process is launched.
type ServerConfiguration struct {
	Command          string            `json:"command"`
	Args             []string          `json:"args,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	TimeoutMs        int               `json:"timeoutMs,omitempty"`
	RetryLimit       int               `json:"retryLimit,omitempty"`
	AutoRestart      bool              `json:"autoRestart,omitempty"`
}

type HealthCheckConfig struct {
	Enabled    bool   `json:"enabled"`
	IntervalMs int    `json:"intervalMs,omitempty"`
	TimeoutMs  int    `json:"timeoutMs,omitempty"`
	Retries    int    `json:"retries,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
}

type ServerMetrics struct {
	UptimeMs         int64      `json:"uptimeMs"`
	RestartCount     int        `json:"restartCount"`
	LastRestart      *time.Time `json:"lastRestart,omitempty"`
	MemoryUsageBytes int64      `json:"memoryUsageBytes,omitempty"`
	CPUUsagePercent  float64    `json:"cpuUsagePercent,omitempty"`
	ResponseTimeMs   int64      `json:"responseTimeMs,omitempty"`
}

// Server is the aggregate root. Version increases by exactly one per
// successful mutation and is the only concurrency-control mechanism.
type Server struct {
	ID            ServerID            `json:"id"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Configuration ServerConfiguration `json:"configuration"`
	Status        ServerStatus        `json:"status"`
	HealthCheck   HealthCheckConfig   `json:"healthCheck"`
	Metrics       ServerMetrics       `json:"metrics"`
	Tags          []string            `json:"tags,omitempty"`
	Version       int64               `json:"version"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// HasTag reports whether the server carries tag; tag order is irrelevant.
func (s *Server) HasTag(tag string) bool {
	for _, existing := range s.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the server's tag set intersects tags.
func (s *Server) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if s.HasTag(tag) {
			return true
		}
	}
	return false
}

// HasAllTags reports whether the server's tag set is a superset of tags.
func (s *Server) HasAllTags(tags []string) bool {
	for _, tag := range tags {
		if !s.HasTag(tag) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can never alias stored state.
func (s *Server) Clone() Server {
	out := *s
	out.Configuration.Args = append([]string(nil), s.Configuration.Args...)
	if s.Configuration.Environment != nil {
		env := make(map[string]string, len(s.Configuration.Environment))
		for key, value := range s.Configuration.Environment {
			env[key] = value
		}
		out.Configuration.Environment = env
	}
	out.Tags = append([]string(nil), s.Tags...)
	if s.Metrics.LastRestart != nil {
		at := *s.Metrics.LastRestart
		out.Metrics.LastRestart = &at
	}
	out.Status = s.Status.Clone()
	return out
}

// CreateServerInput is the payload accepted by Service.CreateServer.
type CreateServerInput struct {
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Configuration ServerConfiguration `json:"configuration"`
	HealthCheck   HealthCheckConfig   `json:"healthCheck,omitempty"`
	Tags          []string            `json:"tags,omitempty"`
}

// ServerDelta is a partial update; nil fields are left untouched.
// Tags replaces the whole set when non-nil.
type ServerDelta struct {
	Name          *string              `json:"name,omitempty"`
	Description   *string              `json:"description,omitempty"`
	Configuration *ServerConfiguration `json:"configuration,omitempty"`
	HealthCheck   *HealthCheckConfig   `json:"healthCheck,omitempty"`
	Tags          []string             `json:"tags,omitempty"`
	Status        *ServerStatus        `json:"status,omitempty"`
	Metrics       *ServerMetrics       `json:"metrics,omitempty"`
}

func (d ServerDelta) IsEmpty() bool {
	return d.Name == nil && d.Description == nil && d.Configuration == nil &&
		d.HealthCheck == nil && d.Tags == nil && d.Status == nil && d.Metrics == nil
}

// Apply merges the delta into a copy of srv without touching version or
// timestamps; persistence owns those.
func (d ServerDelta) Apply(srv Server) Server {
	out := srv.Clone()
	if d.Name != nil {
		out.Name = *d.Name
	}
	if d.Description != nil {
		out.Description = *d.Description
	}
	if d.Configuration != nil {
		out.Configuration = *d.Configuration
	}
	if d.HealthCheck != nil {
		out.HealthCheck = *d.HealthCheck
	}
	if d.Tags != nil {
		out.Tags = append([]string(nil), d.Tags...)
	}
	if d.Status != nil {
		out.Status = d.Status.Clone()
	}
	if d.Metrics != nil {
		out.Metrics = *d.Metrics
	}
	return out
}
