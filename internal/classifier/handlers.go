// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/adiadia/syrphid-receiver/internal/domain"
	"github.com/adiadia/syrphid-receiver/internal/schema"
)

// handleGeneric keeps the whole message in additional_data. This corrective
// update is the only write that modifies an existing events row.
func (d *Dispatcher) handleGeneric(ctx context.Context, uow UnitOfWork, msg *message) error {
	data, err := storableJSON(msg.raw)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return uow.UpdateEventAdditionalData(ctx, msg.eventID, data)
}

// storableJSON compacts raw and replaces what PostgreSQL jsonb refuses:
// invalid UTF-8 sequences and \u0000 escapes both become U+FFFD.
func storableJSON(raw []byte) ([]byte, error) {
	valid := strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(valid)); err != nil {
		return nil, err
	}
	compact := buf.Bytes()

	out := make([]byte, 0, len(compact))
	for i := 0; i < len(compact); i++ {
		if compact[i] != '\\' || i+1 >= len(compact) {
			out = append(out, compact[i])
			continue
		}
		if compact[i+1] == 'u' && i+6 <= len(compact) && string(compact[i+2:i+6]) == "0000" {
			out = append(out, `\ufffd`...)
			i += 5
			continue
		}
		out = append(out, compact[i], compact[i+1])
		i++
	}
	return out, nil
}

func (d *Dispatcher) handleNetworkRequest(ctx context.Context, uow UnitOfWork, msg *message) error {
	req, err := d.validator.NetworkRequest(schema.FoldHeaders(msg.doc))
	if err != nil {
		return err
	}

	_, err = uow.InsertNetworkRequest(ctx, domain.NetworkRequestRecord{
		EventID:   msg.eventID,
		Method:    req.Method,
		RequestID: req.RequestID,
		URL:       req.URL,
		Status:    req.Status,
		Response:  schema.Blob(req.Response),
		Stack:     req.Stack,
		Initiator: req.Initiator,
		Headers:   schema.Blob(req.Headers),
		Body:      schema.Blob(req.Body),
		TimeStamp: req.TimeStamp,
	})
	return err
}

func (d *Dispatcher) handleNetworkResponse(ctx context.Context, uow UnitOfWork, msg *message) error {
	resp, err := d.validator.NetworkResponse(schema.FoldHeaders(msg.doc))
	if err != nil {
		return err
	}

	_, err = uow.InsertNetworkResponse(ctx, domain.NetworkResponseRecord{
		EventID:    msg.eventID,
		RequestID:  resp.RequestID,
		URL:        resp.URL,
		StatusCode: resp.StatusCode,
		Response:   schema.Blob(resp.Response),
		Headers:    schema.Blob(resp.Headers),
		TimeStamp:  resp.TimeStamp,
	})
	return err
}

// handleUserInteraction writes the interaction row, then the detail record
// selected by the sub-kind table. Sub-kinds without an entry stop at the
// interaction row.
func (d *Dispatcher) handleUserInteraction(ctx context.Context, uow UnitOfWork, msg *message) error {
	ui, err := d.validator.UserInteraction(msg.doc)
	if err != nil {
		return err
	}

	interactionID, err := uow.InsertUserInteraction(ctx, domain.UserInteractionRecord{
		EventID:   msg.eventID,
		EventType: ui.Event,
		TargetTag: ui.Target.TagName,
		Target:    schema.Blob(ui.Target.Raw),
		Details:   schema.Blob(ui.AdditionalData),
	})
	if err != nil {
		return err
	}

	kind, ok := d.subKinds[subKindKey(ui.Event)]
	if !ok {
		return nil
	}
	return d.details[kind](ctx, uow, interactionID, ui.AdditionalData)
}

func (d *Dispatcher) handleMouse(ctx context.Context, uow UnitOfWork, interactionID int64, data json.RawMessage) error {
	m, err := d.validator.Mouse(data)
	if err != nil {
		return err
	}

	_, err = uow.InsertMouseEventDetails(ctx, domain.MouseEventRecord{
		InteractionID: interactionID,
		ClientX:       m.ClientX,
		ClientY:       m.ClientY,
		ScreenX:       m.ScreenX,
		ScreenY:       m.ScreenY,
		Button:        m.Button,
		Buttons:       m.Buttons,
		CtrlKey:       m.CtrlKey,
		ShiftKey:      m.ShiftKey,
		AltKey:        m.AltKey,
		MetaKey:       m.MetaKey,
		MovementX:     m.MovementX,
		MovementY:     m.MovementY,
	})
	return err
}

func (d *Dispatcher) handleKey(ctx context.Context, uow UnitOfWork, interactionID int64, data json.RawMessage) error {
	k, err := d.validator.Key(data)
	if err != nil {
		return err
	}

	_, err = uow.InsertKeyEventDetails(ctx, domain.KeyEventRecord{
		InteractionID: interactionID,
		Key:           k.Key,
		Code:          k.Code,
		KeyCode:       k.KeyCode,
		CharCode:      k.CharCode,
		Which:         k.Which,
		Location:      k.Location,
		CtrlKey:       k.CtrlKey,
		ShiftKey:      k.ShiftKey,
		AltKey:        k.AltKey,
		MetaKey:       k.MetaKey,
		Repeat:        k.Repeat,
		IsComposing:   k.IsComposing,
	})
	return err
}

func (d *Dispatcher) handleTouch(ctx context.Context, uow UnitOfWork, interactionID int64, data json.RawMessage) error {
	t, err := d.validator.Touch(data)
	if err != nil {
		return err
	}
	if len(t.Touches) == 0 {
		return nil
	}

	points := make([]domain.TouchPointRecord, len(t.Touches))
	for i, p := range t.Touches {
		points[i] = domain.TouchPointRecord{
			InteractionID: interactionID,
			Position:      i,
			ClientX:       p.ClientX,
			ClientY:       p.ClientY,
			Force:         p.Force,
			Identifier:    p.Identifier,
			RadiusX:       p.RadiusX,
			RadiusY:       p.RadiusY,
			RotationAngle: p.RotationAngle,
			ScreenX:       p.ScreenX,
			ScreenY:       p.ScreenY,
			Target:        schema.Blob(p.Target),
		}
	}

	_, err = uow.InsertTouchPoints(ctx, points)
	return err
}
