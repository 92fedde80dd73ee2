package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/virtuex/exchange-backend/internal/models"
)

func newTestInfoService(st *fakeState) *InfoService {
	return NewInfoService(nil, &fakeOrders{st}, &fakeTrades{st}, nil, zap.NewNop())
}

func TestInfo_EmptyMarket(t *testing.T) {
	st := newFakeState()
	svc := newTestInfoService(st)

	info, err := svc.Info(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Cursor != 0 {
		t.Errorf("cursor = %d, want 0", info.Cursor)
	}
	if info.LowestSellPrice != 0 || info.HighestBuyPrice != 0 {
		t.Errorf("best prices = %d/%d, want 0/0 on an empty book",
			info.LowestSellPrice, info.HighestBuyPrice)
	}
	if info.TradedOrders != nil {
		t.Error("anonymous request must not carry traded orders")
	}
}

func TestInfo_BestPricesAndCursor(t *testing.T) {
	st := newFakeState()
	seller := st.addUser("seller")
	buyer := st.addUser("buyer")
	st.addOrder(models.OrderTypeSell, seller, 1, 120)
	st.addOrder(models.OrderTypeSell, seller, 1, 110)
	st.addOrder(models.OrderTypeBuy, buyer, 1, 90)
	st.addOrder(models.OrderTypeBuy, buyer, 1, 95)

	st.trades[3] = &models.Trade{ID: 3, Amount: 1, Price: 100, CreatedAt: st.tick()}

	svc := newTestInfoService(st)
	info, err := svc.Info(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Cursor != 3 {
		t.Errorf("cursor = %d, want the latest trade id 3", info.Cursor)
	}
	if info.LowestSellPrice != 110 {
		t.Errorf("lowest sell = %d, want 110", info.LowestSellPrice)
	}
	if info.HighestBuyPrice != 95 {
		t.Errorf("highest buy = %d, want 95", info.HighestBuyPrice)
	}
}

func TestInfo_TradedOrdersAfterCursor(t *testing.T) {
	st := newFakeState()
	user := st.addUser("u1")

	st.trades[1] = &models.Trade{ID: 1, Amount: 1, Price: 100, CreatedAt: st.tick()}
	st.trades[2] = &models.Trade{ID: 2, Amount: 1, Price: 105, CreatedAt: st.tick()}

	older := st.addOrder(models.OrderTypeBuy, user, 1, 100)
	newer := st.addOrder(models.OrderTypeSell, user, 1, 105)
	for o, tid := range map[*models.Order]int64{older: 1, newer: 2} {
		id := tid
		at := st.tick()
		o.TradeID = &id
		o.ClosedAt = &at
	}

	svc := newTestInfoService(st)
	info, err := svc.Info(context.Background(), user, 1)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}

	if len(info.TradedOrders) != 1 {
		t.Fatalf("got %d traded orders, want only the one after cursor 1", len(info.TradedOrders))
	}
	got := info.TradedOrders[0]
	if got.ID != newer.ID {
		t.Errorf("traded order id = %d, want %d", got.ID, newer.ID)
	}
	if got.Trade == nil || got.Trade.ID != 2 {
		t.Error("traded order missing its trade relation")
	}
	if got.User == nil || got.User.ID != user.ID {
		t.Error("traded order missing its user relation")
	}
}
