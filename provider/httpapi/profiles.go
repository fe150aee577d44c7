package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	authflow "github.com/citypages/go-authflow"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const profilesPath = "/rest/v1/user_profiles"

// pgrstNoRows is the PostgREST code returned when a single-object request
// matches zero rows.
const pgrstNoRows = "PGRST116"

// Profiles implements authflow.ProfileStore against the service's
// PostgREST-style profile table. Requests carry the service API key, plus
// the caller's access token when the owning Client holds a session, so the
// service can apply row-level policies.
type Profiles struct {
	client *Client
}

var _ authflow.ProfileStore = (*Profiles)(nil)

// Profiles returns the profile store bound to this client's session.
func (c *Client) Profiles() *Profiles {
	return &Profiles{client: c}
}

type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// FetchBySubjectID returns the profile row keyed by the identity subject.
// Zero matching rows map to authflow.ErrProfileNotFound.
func (p *Profiles) FetchBySubjectID(ctx context.Context, subjectID string) (*authflow.Profile, error) {
	query := url.Values{}
	query.Set("user_id", "eq."+subjectID)
	query.Set("limit", "1")

	req, err := p.newRequest(ctx, http.MethodGet, profilesPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	status, raw, err := p.send(req)
	if err != nil {
		return nil, err
	}

	if status == http.StatusOK {
		profile := &authflow.Profile{}
		if err := json.Unmarshal(raw, profile); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode profile")
		}
		return profile, nil
	}

	perr := postgrestError{}
	_ = json.Unmarshal(raw, &perr)
	if perr.Code == pgrstNoRows || status == http.StatusNotFound {
		return nil, authflow.ErrProfileNotFound.WithMetadata(map[string]any{
			"subject_id": subjectID,
		})
	}

	return nil, goerrors.New(
		fmt.Sprintf("profile fetch failed: %s", perr.Message),
		goerrors.CategoryOperation,
	).WithMetadata(map[string]any{"status": status})
}

// Update patches the profile row by primary key with only the changed
// columns. Zero affected rows map to authflow.ErrProfileNotFound.
func (p *Profiles) Update(ctx context.Context, id uuid.UUID, update authflow.ProfileUpdate) error {
	changes := update.Changes()
	if len(changes) == 0 {
		return nil
	}
	now := time.Now()
	changes["updated_at"] = now.Format(time.RFC3339)

	body, err := json.Marshal(changes)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode profile update")
	}

	query := url.Values{}
	query.Set("id", "eq."+id.String())

	req, err := p.newRequest(ctx, http.MethodPatch, profilesPath+"?"+query.Encode(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=headers-only")

	status, raw, err := p.send(req)
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusNoContent || status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return authflow.ErrProfileNotFound.WithMetadata(map[string]any{
			"profile_id": id.String(),
		})
	}

	perr := postgrestError{}
	_ = json.Unmarshal(raw, &perr)
	return goerrors.New(
		fmt.Sprintf("profile update failed: %s", perr.Message),
		goerrors.CategoryOperation,
	).WithMetadata(map[string]any{"status": status})
}

func (p *Profiles) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.client.baseURL+path, body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	if p.client.apiKey != "" {
		req.Header.Set("apikey", p.client.apiKey)
	}

	p.client.mu.Lock()
	current := p.client.current
	p.client.mu.Unlock()
	if current != nil && current.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+current.AccessToken)
	}

	return req, nil
}

func (p *Profiles) send(req *http.Request) (int, []byte, error) {
	res, err := p.client.http.Do(req)
	if err != nil {
		return 0, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "profile service unreachable")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read response")
	}
	return res.StatusCode, raw, nil
}
