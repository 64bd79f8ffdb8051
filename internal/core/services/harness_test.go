package services

import "messenger/internal/core/domain"

type harness struct {
	conns  *fakeConns
	queue  *memQueue
	store  *memDrafts
	chats  *fakeChats
	repo   *memMessages
	tx     *passTx
	bcast  *Broadcaster
	drafts *DraftService
	msgs   *MessageService
	mgr    *ManagerService
	sync   *DraftSyncService
}

func newHarness(chats ...*domain.Chat) *harness {
	log := discardLogger()
	h := &harness{
		conns: newFakeConns(),
		queue: newMemQueue(),
		store: newMemDrafts(),
		chats: newFakeChats(chats...),
		tx:    &passTx{},
	}
	h.repo = newMemMessages(h.chats)
	h.bcast = NewBroadcaster(log, h.conns, h.queue)
	h.drafts = NewDraftService(log, h.chats, h.store, h.bcast)
	h.msgs = NewMessageService(log, h.chats, h.repo, h.bcast, h.drafts, h.tx, 0)
	h.mgr = NewManagerService(log, h.conns, h.bcast, h.chats, h.msgs)
	h.sync = NewDraftSyncService(log, h.chats, h.drafts, h.conns)
	return h
}
