package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"weekcal/internal/config"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// envelope is the response shape shared by every university endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    []sourceRecord  `json:"data"`
	Message json.RawMessage `json:"message,omitempty"`
}

type named struct {
	Name string `json:"ten"`
}

// sourceRecord is the union of the fields the four endpoints use.
type sourceRecord struct {
	Start string `json:"thoiGianBatDau"`
	End   string `json:"thoiGianKetThuc"`

	// timetable
	CourseClass *struct {
		Course     *named `json:"hocPhan"`
		CourseCode string `json:"maHocPhan"`
	} `json:"lopHocPhan"`
	ClassName string `json:"tenLopHocPhan"`
	Room      string `json:"phongHoc"`

	// assignment
	Content string `json:"noiDung"`

	// exam
	Courses  []named `json:"danhSachHocPhan"`
	ExamRoom *struct {
		Code string `json:"ma"`
	} `json:"phong"`

	// event
	EventName  string `json:"tenSuKien"`
	EventType  string `json:"loaiSuKien"`
	EventPlace string `json:"diaDiem"`
}

// fetchJSONSource calls <base><path>/from/<from>/to/<to>. A response with
// success=false contributes no events; a non-2xx status is an error.
func fetchJSONSource(ctx context.Context, client *http.Client, base string, src config.SourceConfig, from, to string) ([]model.RawEvent, error) {
	endpoint := base + src.Path + "/from/" + url.PathEscape(from) + "/to/" + url.PathEscape(to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %s", src.Path, resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", src.Path, err)
	}
	if !env.Success {
		appLog.Warn("source reported failure; skipping", "id", src.ID, "message", string(env.Message))
		return nil, nil
	}

	events := make([]model.RawEvent, 0, len(env.Data))
	for _, rec := range env.Data {
		events = append(events, rec.toRawEvent(src.Kind))
	}
	return events, nil
}

func (r sourceRecord) toRawEvent(kind string) model.RawEvent {
	ev := model.RawEvent{
		StartDate: r.Start,
		EndDate:   r.End,
	}

	switch kind {
	case config.SourceTimetable:
		ev.Title = r.courseTitle()
		ev.Type = model.TypeClass
		ev.Location = r.Room
	case config.SourceAssignment:
		ev.Title = r.Content
		ev.Type = model.TypeAssignment
		ev.Location = r.ClassName
	case config.SourceExam:
		names := make([]string, 0, len(r.Courses))
		for _, c := range r.Courses {
			names = append(names, c.Name)
		}
		ev.Title = strings.Join(names, ", ")
		ev.Type = model.TypeExam
		if r.ExamRoom != nil {
			ev.Location = r.ExamRoom.Code
		}
	case config.SourceEvent:
		ev.Title = r.EventName
		ev.Type = r.EventType
		if ev.Type == "" {
			ev.Type = model.TypeOther
		}
		ev.Location = r.EventPlace
	}
	return ev
}

// courseTitle prefers the course name, then the course code, then the class
// name.
func (r sourceRecord) courseTitle() string {
	if r.CourseClass != nil {
		if r.CourseClass.Course != nil && r.CourseClass.Course.Name != "" {
			return r.CourseClass.Course.Name
		}
		if r.CourseClass.CourseCode != "" {
			return r.CourseClass.CourseCode
		}
	}
	return r.ClassName
}
