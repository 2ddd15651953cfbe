// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adiadia/syrphid-receiver/internal/domain"
)

// InsertEvent writes the root row and returns its generated id.
func (u *UnitOfWork) InsertEvent(ctx context.Context, ev domain.EventRecord) (int64, error) {
	id, err := u.insertReturningID(ctx, `
		INSERT INTO events (
			type, "timestamp", received_at, session_id, sequence_number,
			user_agent, extension_version, operating_system, browser_version,
			screen_width, screen_height, tab_id, url, initiator,
			additional_data, target
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		string(ev.Type),
		u.timeArg(ev.Timestamp),
		u.timeArg(ev.ReceivedAt),
		ev.SessionID,
		ev.SequenceNumber,
		ev.UserAgent,
		ev.ExtensionVersion,
		ev.OperatingSystem,
		nullable(ev.BrowserVersion),
		int64(ev.ScreenWidth),
		int64(ev.ScreenHeight),
		nullable(ev.TabID),
		nullable(ev.URL),
		nullable(ev.Initiator),
		blobArg(ev.AdditionalData),
		blobArg(ev.Target),
	)
	if err != nil {
		u.logger.Error("insert event failed",
			"type", ev.Type,
			"session_id", ev.SessionID,
			"sequence_number", ev.SequenceNumber,
			"error", err,
		)
		return 0, fmt.Errorf("%w: insert event: %w", domain.ErrPersistence, err)
	}

	return id, nil
}

// UpdateEventAdditionalData is the corrective update used by the generic
// handler. It is the only statement that modifies an events row.
func (u *UnitOfWork) UpdateEventAdditionalData(ctx context.Context, eventID int64, data json.RawMessage) error {
	res, err := u.tx.ExecContext(ctx, rebind(u.dialect, `
		UPDATE events SET additional_data = ? WHERE id = ?
	`), blobArg(data), eventID)
	if err != nil {
		u.logger.Error("update event additional data failed", "event_id", eventID, "error", err)
		return fmt.Errorf("%w: update event %d: %w", domain.ErrPersistence, eventID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		u.logger.Error("update event rows affected failed", "event_id", eventID, "error", err)
		return fmt.Errorf("%w: update event %d: %w", domain.ErrPersistence, eventID, err)
	}
	if affected != 1 {
		u.logger.Error("update event matched unexpected rows", "event_id", eventID, "rows", affected)
		return fmt.Errorf("%w: update event %d: %d rows affected", domain.ErrPersistence, eventID, affected)
	}

	return nil
}

func (u *UnitOfWork) InsertNetworkRequest(ctx context.Context, rec domain.NetworkRequestRecord) (int64, error) {
	id, err := u.insertReturningID(ctx, `
		INSERT INTO network_requests (
			event_id, method, request_id, url, status, response,
			stack, initiator, headers, body, time_stamp
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		rec.EventID,
		rec.Method,
		nullable(rec.RequestID),
		nullable(rec.URL),
		nullableInt(rec.Status),
		blobArg(rec.Response),
		nullable(rec.Stack),
		nullable(rec.Initiator),
		blobArg(rec.Headers),
		blobArg(rec.Body),
		nullable(rec.TimeStamp),
	)
	if err != nil {
		u.logger.Error("insert network request failed", "event_id", rec.EventID, "error", err)
		return 0, fmt.Errorf("%w: insert network request: %w", domain.ErrPersistence, err)
	}

	return id, nil
}

func (u *UnitOfWork) InsertNetworkResponse(ctx context.Context, rec domain.NetworkResponseRecord) (int64, error) {
	id, err := u.insertReturningID(ctx, `
		INSERT INTO network_responses (
			event_id, request_id, url, status_code, response, headers, time_stamp
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		rec.EventID,
		nullable(rec.RequestID),
		nullable(rec.URL),
		int64(rec.StatusCode),
		blobArg(rec.Response),
		blobArg(rec.Headers),
		nullable(rec.TimeStamp),
	)
	if err != nil {
		u.logger.Error("insert network response failed", "event_id", rec.EventID, "error", err)
		return 0, fmt.Errorf("%w: insert network response: %w", domain.ErrPersistence, err)
	}

	return id, nil
}

func (u *UnitOfWork) InsertUserInteraction(ctx context.Context, rec domain.UserInteractionRecord) (int64, error) {
	id, err := u.insertReturningID(ctx, `
		INSERT INTO user_interactions (event_id, event_type, target_tag, target, details)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`,
		rec.EventID,
		rec.EventType,
		nullable(rec.TargetTag),
		blobArg(rec.Target),
		blobArg(rec.Details),
	)
	if err != nil {
		u.logger.Error("insert user interaction failed",
			"event_id", rec.EventID,
			"event_type", rec.EventType,
			"error", err,
		)
		return 0, fmt.Errorf("%w: insert user interaction: %w", domain.ErrPersistence, err)
	}

	return id, nil
}

func (u *UnitOfWork) InsertMouseEventDetails(ctx context.Context, rec domain.MouseEventRecord) (int64, error) {
	id, err := u.insertReturningID(ctx, `
		INSERT INTO mouse_event_details (
			interaction_id, client_x, client_y, screen_x, screen_y, button, buttons,
			ctrl_key, shift_key, alt_key, meta_key, movement_x, movement_y
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		rec.InteractionID,
		rec.ClientX,
		rec.ClientY,
		nullable(rec.ScreenX),
		nullable(rec.ScreenY),
		nullableInt(rec.Button),
		nullableInt(rec.Buttons),
		rec.CtrlKey,
		rec.ShiftKey,
		rec.AltKey,
		rec.MetaKey,
		nullable(rec.MovementX),
		nullable(rec.MovementY),
	)
	if err != nil {
		u.logger.Error("insert mouse event details failed", "interaction_id", rec.InteractionID, "error", err)
		return 0, fmt.Errorf("%w: insert mouse event details: %w", domain.ErrPersistence, err)
	}

	return id, nil
}

func (u *UnitOfWork) InsertKeyEventDetails(ctx context.Context, rec domain.KeyEventRecord) (int64, error) {
	id, err := u.insertReturningID(ctx, `
		INSERT INTO key_event_details (
			interaction_id, key, code, key_code, char_code, which, location,
			ctrl_key, shift_key, alt_key, meta_key, repeat, is_composing
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		rec.InteractionID,
		rec.Key,
		rec.Code,
		int64(rec.KeyCode),
		nullableInt(rec.CharCode),
		int64(rec.Which),
		nullableInt(rec.Location),
		rec.CtrlKey,
		rec.ShiftKey,
		rec.AltKey,
		rec.MetaKey,
		rec.Repeat,
		nullable(rec.IsComposing),
	)
	if err != nil {
		u.logger.Error("insert key event details failed", "interaction_id", rec.InteractionID, "error", err)
		return 0, fmt.Errorf("%w: insert key event details: %w", domain.ErrPersistence, err)
	}

	return id, nil
}

// InsertTouchPoints writes one row per point in slice order and returns the
// generated ids in the same order.
func (u *UnitOfWork) InsertTouchPoints(ctx context.Context, points []domain.TouchPointRecord) ([]int64, error) {
	ids := make([]int64, 0, len(points))
	for _, p := range points {
		id, err := u.insertReturningID(ctx, `
			INSERT INTO touch_point_details (
				interaction_id, position, client_x, client_y, force, identifier,
				radius_x, radius_y, rotation_angle, screen_x, screen_y, target
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`,
			p.InteractionID,
			int64(p.Position),
			p.ClientX,
			p.ClientY,
			p.Force,
			p.Identifier,
			p.RadiusX,
			p.RadiusY,
			p.RotationAngle,
			p.ScreenX,
			p.ScreenY,
			blobArg(p.Target),
		)
		if err != nil {
			u.logger.Error("insert touch point failed",
				"interaction_id", p.InteractionID,
				"position", p.Position,
				"error", err,
			)
			return nil, fmt.Errorf("%w: insert touch point %d: %w", domain.ErrPersistence, p.Position, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
