package emotion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yoockh/madprep/internal/analysis"
)

// DeepFace calls a DeepFace-compatible HTTP service (POST /analyze) with the
// emotion action only.
type DeepFace struct {
	c       *http.Client
	baseURL string
}

func NewDeepFace(baseURL string) *DeepFace {
	return &DeepFace{
		c:       &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type analyzeReq struct {
	Img              string   `json:"img"`
	Actions          []string `json:"actions"`
	EnforceDetection bool     `json:"enforce_detection"`
}

type faceResult struct {
	DominantEmotion string             `json:"dominant_emotion"`
	Emotion         map[string]float64 `json:"emotion"`
	// Zero when the detector fell back to the whole image.
	FaceConfidence *float64 `json:"face_confidence"`
}

type analyzeResp struct {
	Results []faceResult `json:"results"`
}

func (d *DeepFace) Classify(ctx context.Context, frame analysis.Frame) (analysis.Classification, error) {
	img, err := frame.Bytes()
	if err != nil {
		return analysis.Classification{}, err
	}

	b, _ := json.Marshal(analyzeReq{
		Img:     "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
		Actions: []string{"emotion"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/analyze", bytes.NewReader(b))
	if err != nil {
		return analysis.Classification{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.c.Do(req)
	if err != nil {
		return analysis.Classification{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return analysis.Classification{}, fmt.Errorf("emotion %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out analyzeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return analysis.Classification{}, fmt.Errorf("emotion decode: %w", err)
	}
	return toClassification(out.Results), nil
}

func unusable(r faceResult) bool {
	return r.FaceConfidence != nil && *r.FaceConfidence <= 0
}

// toClassification keeps the service's order so Primary is its first result.
// A zero-confidence first result means the detector fell back to the whole
// image: the frame has no face, whatever follows.
func toClassification(results []faceResult) analysis.Classification {
	if len(results) == 0 || unusable(results[0]) {
		return analysis.NoFace()
	}
	faces := make([]analysis.FaceAnalysis, 0, len(results))
	for _, r := range results {
		if unusable(r) {
			continue
		}
		faces = append(faces, analysis.FaceAnalysis{
			DominantEmotion: r.DominantEmotion,
			Scores:          analysis.Scores(r.Emotion),
		})
	}
	return analysis.FacesFound(faces...)
}
