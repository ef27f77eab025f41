package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/common"
)

// retryHeader marks a request that already went through one token refresh.
// A 401 on a marked request is an authentication failure, not another
// refresh attempt.
const retryHeader = "X-Kaltrack-Retry"

// HTTPGateway implements Gateway over the backend REST API.
type HTTPGateway struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewHTTPGateway returns a gateway for the API rooted at baseURL.
func NewHTTPGateway(baseURL string, tokens TokenSource, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// SetTokenSource installs the token source. The gateway and the token
// coordinator reference each other, so one of them is wired up after
// construction. Must be called before the first authenticated request.
func (g *HTTPGateway) SetTokenSource(tokens TokenSource) { g.tokens = tokens }

// call performs one authenticated request. A 401 is resolved through the
// token source and the request retried exactly once with the new token.
func (g *HTTPGateway) call(ctx context.Context, method, path string, in, out any) error {
	token, err := g.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	resp, err := g.send(ctx, method, path, in, token, false)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)

		token, err = g.tokens.Resolve(ctx, token)
		if err != nil {
			return err
		}
		resp, err = g.send(ctx, method, path, in, token, true)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			// The freshly refreshed token was rejected too. Do not loop:
			// surface it as an authentication failure.
			drain(resp)
			return fmt.Errorf("%s %s: %w", method, path, common.ErrUnauthenticated)
		}
	}

	return decode(resp, out)
}

func (g *HTTPGateway) send(ctx context.Context, method, path string, in any, token string, retried bool) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+"/"+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if retried {
		req.Header.Set(retryHeader, "1")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// unauthenticated performs a request that carries no bearer token.
func (g *HTTPGateway) unauthenticated(ctx context.Context, method, path string, in, out any) error {
	resp, err := g.send(ctx, method, path, in, "", false)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func decode(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		*raw = b
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func (g *HTTPGateway) Login(ctx context.Context, email, password string) (models.TokenPair, error) {
	var pair models.TokenPair
	in := map[string]string{"email": email, "password": password}
	if err := g.unauthenticated(ctx, http.MethodPost, "auth/login", in, &pair); err != nil {
		return models.TokenPair{}, err
	}
	return pair, nil
}

func (g *HTTPGateway) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	var pair models.TokenPair
	in := map[string]string{"refreshToken": refreshToken}
	if err := g.unauthenticated(ctx, http.MethodPost, "auth/refresh", in, &pair); err != nil {
		return models.TokenPair{}, err
	}
	return pair, nil
}

func (g *HTTPGateway) DiaryDay(ctx context.Context, date string) (*DiaryDayPayload, error) {
	var day DiaryDayPayload
	if err := g.call(ctx, http.MethodGet, "diary/"+url.PathEscape(date), nil, &day); err != nil {
		return nil, err
	}
	return &day, nil
}

func (g *HTTPGateway) CreateDiaryEntry(ctx context.Context, e models.DiaryEntry) error {
	return g.call(ctx, http.MethodPost, "diary", e, nil)
}

func (g *HTTPGateway) UpdateDiaryEntry(ctx context.Context, e models.DiaryEntry) error {
	return g.call(ctx, http.MethodPut, "diary/"+url.PathEscape(e.ID), e, nil)
}

func (g *HTTPGateway) DeleteDiaryEntry(ctx context.Context, id string) error {
	return g.call(ctx, http.MethodDelete, "diary/"+url.PathEscape(id), nil, nil)
}

func (g *HTTPGateway) CompleteDiaryDay(ctx context.Context, date string) error {
	return g.call(ctx, http.MethodPost, "diary/"+url.PathEscape(date)+"/complete", nil, nil)
}

func (g *HTTPGateway) UncompleteDiaryDay(ctx context.Context, date string) error {
	return g.call(ctx, http.MethodDelete, "diary/"+url.PathEscape(date)+"/complete", nil, nil)
}

func (g *HTTPGateway) CreateFood(ctx context.Context, f models.Food) error {
	return g.call(ctx, http.MethodPost, "foods", f, nil)
}

func (g *HTTPGateway) UpdateFood(ctx context.Context, f models.Food) error {
	return g.call(ctx, http.MethodPut, "foods/"+url.PathEscape(f.ID), f, nil)
}

func (g *HTTPGateway) DeleteFood(ctx context.Context, id string) error {
	return g.call(ctx, http.MethodDelete, "foods/"+url.PathEscape(id), nil, nil)
}

func (g *HTTPGateway) PromoteFood(ctx context.Context, id string) error {
	return g.call(ctx, http.MethodPost, "foods/"+url.PathEscape(id)+"/promote", nil, nil)
}

// FoodByBarcode looks a food up by barcode. A backend 404 is mapped to
// common.ErrNotFound so callers can offer manual entry.
func (g *HTTPGateway) FoodByBarcode(ctx context.Context, code string) (*models.Food, error) {
	var f models.Food
	err := g.call(ctx, http.MethodGet, "foods/barcode/"+url.PathEscape(code), nil, &f)
	if IsStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("barcode %s: %w", code, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (g *HTTPGateway) SubmitNutritionLabel(ctx context.Context, image []byte) (*models.NutritionLabel, error) {
	var label models.NutritionLabel
	in := map[string]string{"image": base64.StdEncoding.EncodeToString(image)}
	if err := g.call(ctx, http.MethodPost, "nutrition-labels", in, &label); err != nil {
		return nil, err
	}
	return &label, nil
}

func (g *HTTPGateway) CreateRecipe(ctx context.Context, r models.Recipe) error {
	return g.call(ctx, http.MethodPost, "recipes", r, nil)
}

func (g *HTTPGateway) UpdateRecipe(ctx context.Context, r models.Recipe) error {
	return g.call(ctx, http.MethodPut, "recipes/"+url.PathEscape(r.ID), r, nil)
}

func (g *HTTPGateway) DeleteRecipe(ctx context.Context, id string) error {
	return g.call(ctx, http.MethodDelete, "recipes/"+url.PathEscape(id), nil, nil)
}

func (g *HTTPGateway) CreateSavedMeal(ctx context.Context, m models.SavedMeal) error {
	return g.call(ctx, http.MethodPost, "saved-meals", m, nil)
}

func (g *HTTPGateway) UpdateSavedMeal(ctx context.Context, m models.SavedMeal) error {
	return g.call(ctx, http.MethodPut, "saved-meals/"+url.PathEscape(m.ID), m, nil)
}

func (g *HTTPGateway) DeleteSavedMeal(ctx context.Context, id string) error {
	return g.call(ctx, http.MethodDelete, "saved-meals/"+url.PathEscape(id), nil, nil)
}

func (g *HTTPGateway) CreateWeightEntry(ctx context.Context, w models.WeightEntry) error {
	return g.call(ctx, http.MethodPost, "weights", w, nil)
}

func (g *HTTPGateway) UpdateWeightEntry(ctx context.Context, w models.WeightEntry) error {
	return g.call(ctx, http.MethodPut, "weights/"+url.PathEscape(w.ID), w, nil)
}

func (g *HTTPGateway) DeleteWeightEntry(ctx context.Context, id string) error {
	return g.call(ctx, http.MethodDelete, "weights/"+url.PathEscape(id), nil, nil)
}

func (g *HTTPGateway) CreateExerciseEntry(ctx context.Context, e models.ExerciseEntry) error {
	return g.call(ctx, http.MethodPost, "exercises", e, nil)
}

func (g *HTTPGateway) UpdateExerciseEntry(ctx context.Context, e models.ExerciseEntry) error {
	return g.call(ctx, http.MethodPut, "exercises/"+url.PathEscape(e.ID), e, nil)
}

func (g *HTTPGateway) DeleteExerciseEntry(ctx context.Context, id string) error {
	return g.call(ctx, http.MethodDelete, "exercises/"+url.PathEscape(id), nil, nil)
}

func (g *HTTPGateway) Profile(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := g.call(ctx, http.MethodGet, "user/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *HTTPGateway) UpdateProfile(ctx context.Context, p models.Profile) error {
	return g.call(ctx, http.MethodPut, "user/profile", p, nil)
}

func (g *HTTPGateway) ExportData(ctx context.Context) ([]byte, error) {
	var raw []byte
	if err := g.call(ctx, http.MethodGet, "user/data-export", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (g *HTTPGateway) DeleteAccount(ctx context.Context) error {
	return g.call(ctx, http.MethodDelete, "user/account", nil, nil)
}

func (g *HTTPGateway) Milestones(ctx context.Context) ([]models.Milestone, error) {
	var ms []models.Milestone
	if err := g.call(ctx, http.MethodGet, "weight/milestones", nil, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func (g *HTTPGateway) MarkMilestonesViewed(ctx context.Context) error {
	return g.call(ctx, http.MethodPost, "user/milestones/viewed", nil, nil)
}
