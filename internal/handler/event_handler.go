package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/looplog/internal/db"
	"github.com/looplog/internal/service"
)

type startEventRequest struct {
	BehaviorID uint   `json:"behavior_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Note       string `json:"note"`
}

type updateBehaviorRequest struct {
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Status string `json:"status"`
}

// ListBehaviors 返回全部被追踪的行为。
func (a *API) ListBehaviors(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	behaviors, err := a.behaviors.List(activeOnly)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取行为列表失败")
		return
	}

	payload := make([]gin.H, 0, len(behaviors))
	for _, behavior := range behaviors {
		payload = append(payload, serializeBehavior(behavior))
	}
	c.JSON(http.StatusOK, gin.H{"behaviors": payload})
}

// UpdateBehavior 更新行为的名称、图标与启用状态。
func (a *API) UpdateBehavior(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行为 ID")
		return
	}

	var req updateBehaviorRequest
	if !bindJSON(c, &req, "无效的请求数据") {
		return
	}

	behavior, err := a.behaviors.Update(id, service.BehaviorInput{
		Name:   req.Name,
		Icon:   req.Icon,
		Status: req.Status,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBehaviorNotFound):
			respondError(c, http.StatusNotFound, "行为不存在")
		case errors.Is(err, service.ErrBehaviorNameTaken):
			respondError(c, http.StatusConflict, "行为名称已存在")
		default:
			respondError(c, http.StatusBadRequest, "更新行为失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"behavior": serializeBehavior(*behavior)})
}

// StartEvent 记录一次事件发生。
// 不带手动时间时取服务器当前时间；带手动时间时在日记时区解析。
func (a *API) StartEvent(c *gin.Context) {
	var req startEventRequest
	if !bindJSON(c, &req, "无效的请求数据") {
		return
	}

	startTime, source, err := a.resolveStartTime(req.Date, req.Time)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的开始时间")
		return
	}

	event, err := a.events.Start(service.EventInput{
		BehaviorID: req.BehaviorID,
		StartTime:  startTime,
		Source:     source,
		Note:       req.Note,
	})
	if err != nil {
		if errors.Is(err, service.ErrBehaviorNotFound) {
			respondError(c, http.StatusNotFound, "行为不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "记录事件失败")
		return
	}

	status, err := a.events.Status(event.BehaviorID, a.now())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "计算状态失败")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"event":  a.serializeEvent(*event),
		"status": a.serializeStatus(status),
	})
}

// CloseEvent 关闭一条开启中的事件区间。
func (a *API) CloseEvent(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的事件 ID")
		return
	}

	event, err := a.events.CloseByID(id, a.now())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEventNotFound):
			respondError(c, http.StatusNotFound, "事件不存在")
		case errors.Is(err, service.ErrNoOpenEvent):
			respondError(c, http.StatusConflict, "事件已经关闭")
		default:
			respondError(c, http.StatusInternalServerError, "关闭事件失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": a.serializeEvent(*event)})
}

// GetBehaviorStatus 返回行为当前的持续状态、里程碑与风险提示。
func (a *API) GetBehaviorStatus(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行为 ID")
		return
	}

	status, err := a.events.Status(id, a.now())
	if err != nil {
		if errors.Is(err, service.ErrBehaviorNotFound) {
			respondError(c, http.StatusNotFound, "行为不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "计算状态失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": a.serializeStatus(status)})
}

// GetBehaviorHistory 返回行为的全部区间，含每行时长与开启标记。
func (a *API) GetBehaviorHistory(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的行为 ID")
		return
	}

	if _, err := a.behaviors.Get(id); err != nil {
		if errors.Is(err, service.ErrBehaviorNotFound) {
			respondError(c, http.StatusNotFound, "行为不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "获取历史失败")
		return
	}

	events, err := a.events.History(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取历史失败")
		return
	}

	now := a.now()
	rows := make([]gin.H, 0, len(events))
	for _, event := range events {
		rows = append(rows, a.serializeHistoryRow(event, now))
	}

	c.JSON(http.StatusOK, gin.H{"history": rows})
}

// resolveStartTime 解析手动开始时间：date 为空取当前时间（source=auto），
// 否则在日记时区按 "2006-01-02 15:04:05" 解析（source=manual），time 缺省为零点。
func (a *API) resolveStartTime(date, clock string) (time.Time, string, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	if date == "" {
		if clock != "" {
			return time.Time{}, "", fmt.Errorf("time without date")
		}
		return a.now(), "auto", nil
	}

	if clock == "" {
		clock = "00:00:00"
	}

	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clock, a.location)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse manual start time: %w", err)
	}
	return parsed, "manual", nil
}

func serializeBehavior(behavior db.Behavior) gin.H {
	return gin.H{
		"id":     behavior.ID,
		"name":   behavior.Name,
		"icon":   behavior.Icon,
		"status": behavior.Status,
	}
}

func (a *API) serializeEvent(event db.Event) gin.H {
	payload := gin.H{
		"id":          event.ID,
		"behavior_id": event.BehaviorID,
		"start_time":  event.StartTime.In(a.location).Format(time.RFC3339),
		"source":      event.Source,
		"note":        event.Note,
		"open":        event.EndTime == nil,
	}
	if event.EndTime != nil {
		payload["end_time"] = event.EndTime.In(a.location).Format(time.RFC3339)
	}
	return payload
}

func (a *API) serializeStatus(status *service.StreakStatus) gin.H {
	payload := gin.H{
		"behavior": serializeBehavior(status.Behavior),
		"has_data": status.HasData,
	}
	if !status.HasData {
		return payload
	}

	payload["open"] = status.Open
	payload["anchor_time"] = status.AnchorTime.In(a.location).Format(time.RFC3339)
	payload["elapsed"] = gin.H{
		"years":     status.Breakdown.Years,
		"months":    status.Breakdown.Months,
		"days":      status.Breakdown.Days,
		"hours":     status.Breakdown.Hours,
		"minutes":   status.Breakdown.Minutes,
		"seconds":   status.Breakdown.Seconds,
		"formatted": status.Breakdown.Format(),
	}
	payload["elapsed_minutes"] = status.ElapsedMinutes
	payload["record_seconds"] = int64(status.Record / time.Second)
	payload["milestone"] = gin.H{
		"label":             status.Milestone.Label,
		"threshold_seconds": int64(status.Milestone.Threshold / time.Second),
		"progress":          status.Milestone.Progress,
		"record_progress":   status.Milestone.RecordProgress,
		"new_record":        status.Milestone.NewRecord,
	}
	payload["risk"] = gin.H{
		"level":   string(status.Risk.Level),
		"matches": status.Risk.Matches,
		"total":   status.Risk.Total,
		"ratio":   status.Risk.Ratio,
		"message": status.Risk.Message,
	}
	return payload
}

func (a *API) serializeHistoryRow(event db.Event, now time.Time) gin.H {
	start := event.StartTime.In(a.location)
	row := gin.H{
		"id":     event.ID,
		"date":   start.Format("2006-01-02"),
		"start":  start.Format("15:04:05"),
		"open":   event.EndTime == nil,
		"source": event.Source,
		"note":   event.Note,
	}

	if event.EndTime != nil {
		end := event.EndTime.In(a.location)
		row["end"] = end.Format("15:04:05")
		row["duration"] = service.Elapsed(start, end).Format()
	} else {
		// 开启中的区间按当前时间滚动计算
		row["end"] = "⏳ Activo"
		row["duration"] = service.Elapsed(start, now).Format()
	}
	return row
}
