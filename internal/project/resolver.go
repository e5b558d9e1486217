package project

import (
	"log"
	"strings"

	"vibration-backend/internal/models"
)

// MetadataProvider supplies project configuration. The configuration CRUD
// lives outside this service; the handler only ever reads.
type MetadataProvider interface {
	GetProjectData(project string) (*models.Project, error)
}

// Resolution binds a transport topic to the model that publishes on it.
type Resolution struct {
	Project      string
	Model        *models.Model
	ChannelCount int
}

// Resolver maps inbound topic strings to project models. One resolver is
// owned by one handler instance for one active project and is only called
// from the frame worker.
type Resolver struct {
	project  string
	provider MetadataProvider

	// Parsed channel count, cached per configuration token so an
	// unparsable token is parsed (and logged) once, not on every frame.
	countToken string
	count      int
}

func NewResolver(project string, provider MetadataProvider) *Resolver {
	return &Resolver{project: project, provider: provider}
}

// Resolve looks up the model whose declared tag equals topic. A false
// return means the message should be dropped; no retry is scheduled.
func (r *Resolver) Resolve(topic string) (*Resolution, bool) {
	data, err := r.provider.GetProjectData(r.project)
	if err != nil || data == nil {
		log.Printf("Resolver: project metadata unavailable for %q: %v", r.project, err)
		return nil, false
	}

	for i := range data.Models {
		m := &data.Models[i]
		if m.TagName == topic {
			return &Resolution{
				Project:      r.project,
				Model:        m,
				ChannelCount: r.channelCount(data.ChannelCountConfig),
			}, true
		}
	}
	return nil, false
}

func (r *Resolver) channelCount(token string) int {
	if r.count == 0 || token != r.countToken {
		r.count = ParseChannelCount(token)
		r.countToken = token
	}
	return r.count
}

// ParseChannelCount extracts the DAQ channel count from the free-form
// configuration token (e.g. "DAQ8CH" -> 8) by taking its last run of
// digits. An unparsable token falls back to 4.
func ParseChannelCount(token string) int {
	count := 0
	digits := 0
	for i := len(token) - 1; i >= 0; i-- {
		c := token[i]
		if c >= '0' && c <= '9' {
			if digits < 4 {
				mult := 1
				for d := 0; d < digits; d++ {
					mult *= 10
				}
				count += int(c-'0') * mult
				digits++
			}
			continue
		}
		if digits > 0 {
			break
		}
	}
	if digits == 0 || count == 0 {
		log.Printf("Resolver: cannot parse channel count from %q, defaulting to 4", strings.TrimSpace(token))
		return 4
	}
	return count
}
