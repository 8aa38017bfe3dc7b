package workflows_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/careflow/internal/workflows"
	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

var testDirectory = workflows.StaticDirectory{
	{Name: "Dr. Meera Iyer", Specialties: []string{"Ayurvedic Dermatology"}, City: "Pune", Rating: 4.5},
	{Name: "Dr. Arjun Kale", Specialties: []string{"Ayurvedic Dermatology", "Panchakarma"}, City: "pune", Rating: 4.9},
	{Name: "Dr. Low Rated", Specialties: []string{"Ayurvedic Dermatology"}, City: "Pune", Rating: 3.5},
	{Name: "Dr. Elsewhere", Specialties: []string{"Ayurvedic Dermatology"}, City: "Delhi", Rating: 4.8},
	{Name: "Dr. Generalist", Specialties: []string{"General Ayurveda"}, City: "Pune", Rating: 4.6},
}

func schedulingSettings(dir workflows.Directory) workflows.Settings {
	s := workflows.DefaultSettings()
	s.Directory = dir
	return s
}

func TestScheduling_FindsDoctors(t *testing.T) {
	svc := script(
		reply{key: "specialties", content: `{"specialties": ["Ayurvedic Dermatology", "Astrology"], "explanation": "Skin conditions."}`},
		reply{key: "city", content: `{"city": null, "preferred_date": null}`},
		reply{key: "preferred_date", content: `{"preferred_date": "Friday"}`},
		reply{key: "", content: "I found two dermatology specialists in Pune."},
	)
	wf, err := workflows.Scheduling(schedulingSettings(testDirectory))
	h := newHarness(t, wf, err, svc)

	in := h.start(map[string]string{
		supervisor.SeedMessage:     "Can you book me a doctor?",
		workflows.KeySymptoms:      "skin rash (severity: mild)",
		workflows.KeyTriageOutcome: workflows.OutcomeNeedsDoctor,
	})
	require.Equal(t, careflow.StatusSuspended, in.Status)
	assert.Equal(t, "city", in.PendingQuestion.Field)

	done := h.resume(in, "Pune")
	out := requireCompleted(t, done)
	assert.Equal(t, "I found two dermatology specialists in Pune.", out.Text)
	assert.Equal(t, "Ayurvedic Dermatology", out.Data[workflows.KeySpecialty])
	assert.Equal(t, "Pune", out.Data[workflows.KeyCity])
	assert.Equal(t, "Friday", done.Value("preferred_date"))
	assert.Empty(t, h.degraded)

	var match string
	for _, call := range svc.Calls() {
		if strings.Contains(call.SchemaHint, `"specialties"`) {
			match = call.UserContent
		}
	}
	assert.Contains(t, match, "skin rash (severity: mild)")
	assert.Contains(t, match, "Triage outcome: needs_doctor")
}

func TestScheduling_BookingContext(t *testing.T) {
	svc := script(
		reply{key: "specialties", content: `{"specialties": ["Ayurvedic Dermatology"]}`},
		reply{key: "city", content: `{"city": "Pune", "preferred_date": "next Monday"}`},
		reply{key: "", content: "Here are your doctors."},
	)
	wf, err := workflows.Scheduling(schedulingSettings(testDirectory))
	h := newHarness(t, wf, err, svc)

	out := requireCompleted(t, h.start(map[string]string{
		supervisor.SeedMessage: "I need a skin doctor in Pune next Monday",
		workflows.KeySymptoms:  "itchy skin",
	}))
	assert.Equal(t, "2", out.Data["doctor_count"])
	assert.Equal(t, map[string]string{
		workflows.KeySpecialty: "Ayurvedic Dermatology",
		workflows.KeyCity:      "Pune",
	}, out.Handoff)

	var booking workflows.BookingContext
	require.NoError(t, sonic.UnmarshalString(out.Data["booking_context"], &booking))
	assert.Equal(t, "itchy skin", booking.Symptoms)
	assert.Equal(t, "Pune", booking.City)
	assert.Equal(t, "next Monday", booking.PreferredDate)
	assert.Equal(t, []string{"Ayurvedic Dermatology"}, booking.Specialties)
	require.Len(t, booking.Doctors, 2)
	assert.Equal(t, "Dr. Arjun Kale", booking.Doctors[0].Name)
	assert.Equal(t, "Dr. Meera Iyer", booking.Doctors[1].Name)
}

func TestScheduling_Degraded(t *testing.T) {
	tests := []struct {
		name string
		dir  workflows.Directory
		want string
	}{
		{
			name: "no directory",
			dir:  nil,
			want: "I recommend consulting a General Ayurveda specialist in Delhi. " +
				"However, I'm having trouble accessing the doctor database right now.",
		},
		{
			name: "directory error",
			dir:  failingDirectory{},
			want: "having trouble accessing the doctor database",
		},
		{
			name: "no matches",
			dir:  workflows.StaticDirectory{},
			want: "I couldn't find any General Ayurveda specialists in Delhi right now. " +
				"Would you like to try a different city or specialty?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := schedulingSettings(tt.dir)
			s.MaxIterations[supervisor.WorkflowScheduling] = 0
			wf, err := workflows.Scheduling(s)
			h := newHarness(t, wf, err, nil)

			done := h.start(map[string]string{supervisor.SeedMessage: "find me a doctor"})
			out := requireCompleted(t, done)
			assert.Contains(t, out.Text, tt.want)
			assert.Equal(t, workflows.GeneralAyurveda, out.Data[workflows.KeySpecialty])
			assert.Equal(t, "Delhi", out.Data[workflows.KeyCity])
			assert.Equal(t, "0", out.Data["doctor_count"])
			assert.True(t, done.IncompleteAssessment)
			assert.Contains(t, h.components(), "scheduling.match")
		})
	}
}

func TestScheduling_CapsDoctors(t *testing.T) {
	var dir workflows.StaticDirectory
	for i := range 8 {
		dir = append(dir, workflows.Doctor{
			Name:        fmt.Sprintf("Dr. %d", i),
			Specialties: []string{workflows.GeneralAyurveda},
			City:        "Delhi",
			Rating:      4.0 + float64(i)/10,
		})
	}
	s := schedulingSettings(dir)
	s.MaxIterations[supervisor.WorkflowScheduling] = 0
	wf, err := workflows.Scheduling(s)
	h := newHarness(t, wf, err, nil)

	out := requireCompleted(t, h.start(map[string]string{supervisor.SeedMessage: "doctor"}))
	assert.Equal(t, "5", out.Data["doctor_count"])
	assert.Contains(t, out.Text, "Dr. 7, rating 4.7")
	assert.NotContains(t, out.Text, "Dr. 2,")
}

type failingDirectory struct{}

func (failingDirectory) Search(context.Context, []string, string, float64) ([]workflows.Doctor, error) {
	return nil, errors.New("directory offline")
}

func TestStaticDirectory_Search(t *testing.T) {
	got, err := testDirectory.Search(context.Background(), []string{"panchakarma", "General Ayurveda"}, "PUNE", 4.0)
	require.NoError(t, err)
	var names []string
	for _, d := range got {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Dr. Arjun Kale", "Dr. Generalist"}, names)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = testDirectory.Search(ctx, nil, "Pune", 0)
	assert.ErrorIs(t, err, context.Canceled)
}
