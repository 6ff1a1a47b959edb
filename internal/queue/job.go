package queue

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
)

// Job is a named task with a flat string payload. Attempt counts previous
// failed executions and is managed by the queue.
type Job struct {
	ID      string            `json:"id"`
	Task    string            `json:"task"`
	Args    map[string]string `json:"args"`
	Attempt int               `json:"attempt"`
}

// NewJob returns a job with a fresh id.
func NewJob(task string, args map[string]string) Job {
	return Job{ID: uuid.NewString(), Task: task, Args: args}
}

const TaskSendAutoresponse = "send_autoresponse"

// AutoresponseJob is the payload of a send_autoresponse job. It only carries
// immutable values; the worker re-reads everything else from the store.
type AutoresponseJob struct {
	From            string
	To              string
	IncomingSubject string
	IncomingBody    string
	CampaignID      int64
	ResponderID     int64
	UnsubscribeURL  string
}

func (a AutoresponseJob) ToJob() Job {
	return NewJob(TaskSendAutoresponse, map[string]string{
		"from":             a.From,
		"to":               a.To,
		"incoming_subject": a.IncomingSubject,
		"incoming_body":    a.IncomingBody,
		"campaign_id":      strconv.FormatInt(a.CampaignID, 10),
		"responder_id":     strconv.FormatInt(a.ResponderID, 10),
		"unsubscribe_url":  a.UnsubscribeURL,
	})
}

// ParseAutoresponseJob validates a job payload. Every error it returns is
// permanent since retrying cannot fix the payload.
func ParseAutoresponseJob(job Job) (AutoresponseJob, error) {
	if job.Task != TaskSendAutoresponse {
		return AutoresponseJob{}, appErrors.Permanent(fmt.Errorf("unexpected task %q", job.Task))
	}

	required := []string{"from", "to", "campaign_id", "responder_id", "unsubscribe_url"}
	for _, key := range required {
		if job.Args[key] == "" {
			return AutoresponseJob{}, appErrors.Permanent(fmt.Errorf("job %s: missing %q", job.ID, key))
		}
	}
	for _, key := range []string{"incoming_subject", "incoming_body"} {
		if _, ok := job.Args[key]; !ok {
			return AutoresponseJob{}, appErrors.Permanent(fmt.Errorf("job %s: missing %q", job.ID, key))
		}
	}

	campaignID, err := strconv.ParseInt(job.Args["campaign_id"], 10, 64)
	if err != nil {
		return AutoresponseJob{}, appErrors.Permanent(fmt.Errorf("job %s: invalid campaign_id: %w", job.ID, err))
	}
	responderID, err := strconv.ParseInt(job.Args["responder_id"], 10, 64)
	if err != nil {
		return AutoresponseJob{}, appErrors.Permanent(fmt.Errorf("job %s: invalid responder_id: %w", job.ID, err))
	}

	return AutoresponseJob{
		From:            job.Args["from"],
		To:              job.Args["to"],
		IncomingSubject: job.Args["incoming_subject"],
		IncomingBody:    job.Args["incoming_body"],
		CampaignID:      campaignID,
		ResponderID:     responderID,
		UnsubscribeURL:  job.Args["unsubscribe_url"],
	}, nil
}
