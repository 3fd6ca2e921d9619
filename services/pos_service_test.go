package services

import (
	"context"
	"testing"

	"SmartInventory/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedShopWithProducts(t *testing.T, db *gorm.DB) (models.User, models.Product, models.Product) {
	t.Helper()

	shop := models.Shop{Name: "Corner Store"}
	require.NoError(t, db.Create(&shop).Error)
	cashier := models.User{ShopID: shop.ID, Email: "cashier@corner.test", Role: models.RoleStaff}
	require.NoError(t, db.Create(&cashier).Error)

	sku1, sku2 := "COF-001", "TEA-001"
	coffee := models.Product{ShopID: shop.ID, Name: "Coffee Beans", SKU: &sku1, Price: 12.5, StockQuantity: 10}
	tea := models.Product{ShopID: shop.ID, Name: "Green Tea", SKU: &sku2, Price: 8.0, StockQuantity: 2}
	require.NoError(t, db.Create(&coffee).Error)
	require.NoError(t, db.Create(&tea).Error)

	return cashier, coffee, tea
}

func TestCreateBillDecrementsStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewPOSService(db, nil, "")
	cashier, coffee, tea := seedShopWithProducts(t, db)

	bill, err := svc.CreateBill(context.Background(), identityOf(cashier), CreateBillInput{
		Items: []BillItemInput{
			{ProductID: coffee.ID, Quantity: 2},
			{ProductID: tea.ID, Quantity: 1},
		},
		Tax: 1.0,
	})
	require.NoError(t, err)
	require.InDelta(t, 33.0, bill.Subtotal, 0.001)
	require.InDelta(t, 34.0, bill.Total, 0.001)
	require.Equal(t, "cash", bill.PaymentMethod)

	// 每次查询用新结构体，避免 gorm 把上一次的主键条件带进来
	var coffeeAfter, teaAfter models.Product
	require.NoError(t, db.First(&coffeeAfter, coffee.ID).Error)
	require.Equal(t, 8, coffeeAfter.StockQuantity)
	require.NoError(t, db.First(&teaAfter, tea.ID).Error)
	require.Equal(t, 1, teaAfter.StockQuantity)

	var movements []models.StockMovement
	require.NoError(t, db.Where("shop_id = ?", cashier.ShopID).Find(&movements).Error)
	require.Len(t, movements, 2)
	for _, m := range movements {
		require.Negative(t, m.QuantityChange)
		require.Equal(t, "POS Sale", m.Reason)
	}

	loaded, err := svc.GetBill(context.Background(), cashier.ShopID, bill.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
}

func TestCreateBillInsufficientStockRollsBack(t *testing.T) {
	db := newTestDB(t)
	svc := NewPOSService(db, nil, "")
	cashier, coffee, tea := seedShopWithProducts(t, db)

	// 第一项能扣，第二项超库存，必须整单回滚
	_, err := svc.CreateBill(context.Background(), identityOf(cashier), CreateBillInput{
		Items: []BillItemInput{
			{ProductID: coffee.ID, Quantity: 1},
			{ProductID: tea.ID, Quantity: 5},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var after models.Product
	require.NoError(t, db.First(&after, coffee.ID).Error)
	require.Equal(t, 10, after.StockQuantity)

	var billCount int64
	require.NoError(t, db.Model(&models.Bill{}).Count(&billCount).Error)
	require.Zero(t, billCount)
}

func TestCreateBillValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewPOSService(db, nil, "")
	cashier, coffee, _ := seedShopWithProducts(t, db)

	_, err := svc.CreateBill(context.Background(), identityOf(cashier), CreateBillInput{})
	require.ErrorIs(t, err, ErrEmptyBill)

	_, err = svc.CreateBill(context.Background(), identityOf(cashier), CreateBillInput{
		Items: []BillItemInput{{ProductID: coffee.ID, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidBillItem)
}

func TestCreateBillScopedToShop(t *testing.T) {
	db := newTestDB(t)
	svc := NewPOSService(db, nil, "")
	_, coffee, _ := seedShopWithProducts(t, db)

	// 另一家店的收银员拿不到这个商品
	otherShop := models.Shop{Name: "Rival Store"}
	require.NoError(t, db.Create(&otherShop).Error)
	rival := models.User{ShopID: otherShop.ID, Email: "rival@rival.test", Role: models.RoleStaff}
	require.NoError(t, db.Create(&rival).Error)

	_, err := svc.CreateBill(context.Background(), identityOf(rival), CreateBillInput{
		Items: []BillItemInput{{ProductID: coffee.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.GetBill(context.Background(), otherShop.ID, 9999)
	require.ErrorIs(t, err, ErrBillNotFound)
}
