package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/membros/internal/domain/model"
	"github.com/okian/membros/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGraduationReportJSON(t *testing.T) {
	Convey("Given a scored member", t, func() {
		date := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
		score := model.MemberScore{
			Member: model.Member{ID: 1, FullName: "Maria Silva", ShortName: "Maria"},
			Scores: model.Scores{SocialAction: 1},
			Events: []model.EventParticipation{{
				Event:        model.Event{ID: 5, Title: "Campanha", Date: date, Category: model.SocialAction{Action: model.ActionExternal}},
				Participated: true,
			}},
			LatePayments: []model.LatePayment{{ID: 3, MemberID: 1, Period: model.Period{Year: 2025, Month: 1}}},
		}
		score.TotalScore = score.Scores.Total()

		Convey("When building and encoding the report", func() {
			report := types.NewGraduationReport(types.Period{Start: "01/01/2025", End: "31/01/2025"}, []model.MemberScore{score})
			raw, err := json.Marshal(report)
			So(err, ShouldBeNil)

			var decoded map[string]interface{}
			So(json.Unmarshal(raw, &decoded), ShouldBeNil)

			Convey("Then the period is echoed", func() {
				So(decoded["period"], ShouldResemble, map[string]interface{}{"start": "01/01/2025", "end": "31/01/2025"})
			})

			Convey("Then the member row uses the wire names", func() {
				row := decoded["data"].([]interface{})[0].(map[string]interface{})
				So(row["personId"], ShouldEqual, float64(1))
				So(row["shortName"], ShouldEqual, "Maria")
				So(row["totalScore"], ShouldEqual, float64(1))
				So(row["scores"], ShouldResemble, map[string]interface{}{
					"socialAction": float64(1), "poll": float64(0), "otherEvents": float64(0), "payments": float64(0),
				})
			})

			Convey("Then events carry the category kind", func() {
				ev := decoded["data"].([]interface{})[0].(map[string]interface{})["events"].([]interface{})[0].(map[string]interface{})
				So(ev["eventType"], ShouldEqual, "social_action")
				So(ev["participated"], ShouldEqual, true)
				So(ev["date"], ShouldEqual, "2025-01-10T12:00:00Z")
			})

			Convey("Then late payments keep a null paidAt and omit empty notes", func() {
				lp := decoded["data"].([]interface{})[0].(map[string]interface{})["latePayments"].([]interface{})[0].(map[string]interface{})
				So(lp["year"], ShouldEqual, float64(2025))
				So(lp["month"], ShouldEqual, float64(1))
				So(lp["paidAt"], ShouldBeNil)
				_, hasNotes := lp["notes"]
				So(hasNotes, ShouldBeFalse)
			})
		})

		Convey("When the report has no members", func() {
			raw, err := json.Marshal(types.NewGraduationReport(types.Period{}, nil))

			Convey("Then data is an empty array", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldContainSubstring, `"data":[]`)
			})
		})
	})
}

func TestDivisionActions(t *testing.T) {
	Convey("Given an empty division listing", t, func() {
		d := types.NewDivisionActions(2, "Divisão Norte")

		Convey("When adding actions of each sub-classification", func() {
			So(d.Add(model.ActionInternal, types.SocialAction{ID: 1}), ShouldBeTrue)
			So(d.Add(model.ActionExternal, types.SocialAction{ID: 2}), ShouldBeTrue)
			So(d.Add(model.ActionFundraising, types.SocialAction{ID: 3}), ShouldBeTrue)

			Convey("Then each lands in its group", func() {
				So(d.SocialActions.Internal[0].ID, ShouldEqual, 1)
				So(d.SocialActions.External[0].ID, ShouldEqual, 2)
				So(d.SocialActions.Fundraising[0].ID, ShouldEqual, 3)
			})
		})

		Convey("When adding an unclassified action", func() {
			So(d.Add(model.ActionUnspecified, types.SocialAction{ID: 4}), ShouldBeFalse)

			Convey("Then it is dropped and groups encode as empty arrays", func() {
				raw, err := json.Marshal(d)
				So(err, ShouldBeNil)
				So(string(raw), ShouldContainSubstring, `"internal":[]`)
				So(string(raw), ShouldContainSubstring, `"divisionName":"Divisão Norte"`)
			})
		})
	})
}
