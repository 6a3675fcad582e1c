package ews

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/guilherme-santos/roomsync"
)

type getFolderRequest struct {
	XMLName     xml.Name              `xml:"m:GetFolder"`
	BaseShape   string                `xml:"m:FolderShape>t:BaseShape"`
	Distinguish distinguishedFolderID `xml:"m:FolderIds>t:DistinguishedFolderId"`
}

type distinguishedFolderID struct {
	ID           string `xml:"Id,attr"`
	EmailAddress string `xml:"t:Mailbox>t:EmailAddress"`
}

type getFolderResponse struct {
	Messages []getFolderMessage `xml:"ResponseMessages>GetFolderResponseMessage"`
}

type getFolderMessage struct {
	responseMessage
	Folders []calendarFolder `xml:"Folders>CalendarFolder"`
}

type calendarFolder struct {
	FolderID    folderID `xml:"FolderId"`
	DisplayName string   `xml:"DisplayName"`
}

type folderID struct {
	ID        string `xml:"Id,attr"`
	ChangeKey string `xml:"ChangeKey,attr,omitempty"`
}

// Calendar opens the default calendar folder of mb through delegate access.
func (s *session) Calendar(ctx context.Context, mb roomsync.Mailbox) (roomsync.Folder, error) {
	req := getFolderRequest{
		BaseShape: "IdOnly",
		Distinguish: distinguishedFolderID{
			ID:           "calendar",
			EmailAddress: mb.EmailAddress,
		},
	}
	var resp getFolderResponse
	if err := s.call(ctx, &req, &resp); err != nil {
		return nil, fmt.Errorf("opening calendar of %s: %w", mb, err)
	}
	if len(resp.Messages) != 1 {
		return nil, fmt.Errorf("%w: opening calendar of %s: got %d response messages", roomsync.ErrResolution, mb, len(resp.Messages))
	}

	msg := resp.Messages[0]
	if err := msg.err(roomsync.ErrResolution); err != nil {
		return nil, fmt.Errorf("opening calendar of %s: %w", mb, err)
	}
	if len(msg.Folders) != 1 {
		return nil, fmt.Errorf("%w: expected one calendar folder for %s, got %d", roomsync.ErrResolution, mb, len(msg.Folders))
	}

	return &folder{
		session: s,
		mailbox: mb,
		id:      msg.Folders[0].FolderID,
	}, nil
}

type folder struct {
	session *session
	mailbox roomsync.Mailbox
	id      folderID
}

type findItemRequest struct {
	XMLName   xml.Name     `xml:"m:FindItem"`
	Traversal string       `xml:"Traversal,attr"`
	ItemShape itemShape    `xml:"m:ItemShape"`
	View      calendarView `xml:"m:CalendarView"`
	Parent    folderID     `xml:"m:ParentFolderIds>t:FolderId"`
}

type itemShape struct {
	BaseShape  string     `xml:"t:BaseShape"`
	Properties []fieldURI `xml:"t:AdditionalProperties>t:FieldURI"`
}

type fieldURI struct {
	URI string `xml:"FieldURI,attr"`
}

type calendarView struct {
	MaxEntriesReturned int    `xml:"MaxEntriesReturned,attr"`
	StartDate          string `xml:"StartDate,attr"`
	EndDate            string `xml:"EndDate,attr"`
}

type findItemResponse struct {
	Messages []findItemMessage `xml:"ResponseMessages>FindItemResponseMessage"`
}

type findItemMessage struct {
	responseMessage
	RootFolder struct {
		IncludesLastItemInRange bool           `xml:"IncludesLastItemInRange,attr"`
		TotalItemsInView        int            `xml:"TotalItemsInView,attr"`
		Items                   []calendarItem `xml:"Items>CalendarItem"`
	} `xml:"RootFolder"`
}

type calendarItem struct {
	ItemID   folderID `xml:"ItemId"`
	Subject  string   `xml:"Subject"`
	Location string   `xml:"Location"`
	Start    string   `xml:"Start"`
	End      string   `xml:"End"`
}

var calendarItemFields = []fieldURI{
	{"item:Subject"},
	{"calendar:Start"},
	{"calendar:End"},
	{"calendar:Location"},
}

// Events returns the occurrences overlapping [start, end). Recurring meetings
// are expanded by the server. Pages are fetched as the iterator advances.
func (f *folder) Events(ctx context.Context, start, end time.Time) (roomsync.EventIterator, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("ews: empty range [%s, %s)", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return &eventIterator{
		ctx:    ctx,
		folder: f,
		from:   start,
		end:    end,
		seen:   make(map[string]bool),
	}, nil
}

func (f *folder) findItems(ctx context.Context, from, end time.Time) (*findItemMessage, error) {
	req := findItemRequest{
		Traversal: "Shallow",
		ItemShape: itemShape{BaseShape: "IdOnly", Properties: calendarItemFields},
		View: calendarView{
			MaxEntriesReturned: f.session.client.cfg.PageSize,
			StartDate:          from.Format(time.RFC3339),
			EndDate:            end.Format(time.RFC3339),
		},
		Parent: f.id,
	}
	var resp findItemResponse
	if err := f.session.call(ctx, &req, &resp); err != nil {
		return nil, fmt.Errorf("listing calendar of %s: %w", f.mailbox, err)
	}
	if len(resp.Messages) != 1 {
		return nil, fmt.Errorf("ews: listing calendar of %s: got %d response messages", f.mailbox, len(resp.Messages))
	}
	msg := &resp.Messages[0]
	if err := msg.err(nil); err != nil {
		return nil, fmt.Errorf("listing calendar of %s: %w", f.mailbox, err)
	}
	return msg, nil
}

type eventIterator struct {
	ctx    context.Context
	folder *folder
	from   time.Time
	end    time.Time

	page []*roomsync.Event
	pos  int
	last bool
	seen map[string]bool

	cur *roomsync.Event
	err error
}

func (it *eventIterator) Next() bool {
	for {
		if it.err != nil {
			it.cur = nil
			return false
		}
		if it.pos < len(it.page) {
			it.cur = it.page[it.pos]
			it.pos++
			return true
		}
		if it.last {
			it.cur = nil
			return false
		}
		it.fetch()
	}
}

// fetch loads the next page. A CalendarView cannot be offset, so the next
// page restarts at the start of the last item seen and repeated items are
// dropped by id.
func (it *eventIterator) fetch() {
	msg, err := it.folder.findItems(it.ctx, it.from, it.end)
	if err != nil {
		it.err = err
		return
	}

	it.page = it.page[:0]
	it.pos = 0
	var lastStart time.Time
	for _, ci := range msg.RootFolder.Items {
		ev, err := ci.event()
		if err != nil {
			it.err = err
			return
		}
		lastStart = ev.StartsAt
		if it.seen[ev.ID] {
			continue
		}
		it.seen[ev.ID] = true
		it.page = append(it.page, ev)
	}

	switch {
	case msg.RootFolder.IncludesLastItemInRange, len(msg.RootFolder.Items) == 0:
		it.last = true
	case len(it.page) == 0 && !lastStart.After(it.from):
		// a full page starting at the same instant, nothing left to gain
		it.last = true
	default:
		it.from = lastStart
	}
}

func (it *eventIterator) Event() *roomsync.Event {
	return it.cur
}

func (it *eventIterator) Err() error {
	return it.err
}

func (ci calendarItem) event() (*roomsync.Event, error) {
	start, err := time.Parse(time.RFC3339, ci.Start)
	if err != nil {
		return nil, fmt.Errorf("ews: item %s: bad start %q: %w", ci.ItemID.ID, ci.Start, err)
	}
	end, err := time.Parse(time.RFC3339, ci.End)
	if err != nil {
		return nil, fmt.Errorf("ews: item %s: bad end %q: %w", ci.ItemID.ID, ci.End, err)
	}
	return &roomsync.Event{
		ID:       ci.ItemID.ID,
		Subject:  ci.Subject,
		Location: ci.Location,
		StartsAt: start,
		EndsAt:   end,
	}, nil
}
