package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"SmartInventory/kafka"
	"SmartInventory/models"

	"gorm.io/gorm"
)

var (
	ErrEmptyBill         = errors.New("items are required")
	ErrInvalidBillItem   = errors.New("each item must have product_id and a positive quantity")
	ErrProductNotFound   = errors.New("one or more products not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBillNotFound      = errors.New("bill not found")
)

type BillItemInput struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type CreateBillInput struct {
	Items         []BillItemInput `json:"items"`
	Tax           float64         `json:"tax"`
	Discount      float64         `json:"discount"`
	PaymentMethod string          `json:"payment_method"`
}

type POSService struct {
	db         *gorm.DB
	producer   *kafka.Producer
	salesTopic string
}

// NewPOSService producer 可以为 nil（未配置 kafka 时销售事件直接跳过）
func NewPOSService(db *gorm.DB, producer *kafka.Producer, salesTopic string) *POSService {
	return &POSService{db: db, producer: producer, salesTopic: salesTopic}
}

// CreateBill 开单：校验库存、写账单和明细、扣库存、记库存流水，整单一个事务
func (s *POSService) CreateBill(ctx context.Context, identity *Identity, input CreateBillInput) (*models.Bill, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyBill
	}
	for _, item := range input.Items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			return nil, ErrInvalidBillItem
		}
	}
	if input.PaymentMethod == "" {
		input.PaymentMethod = "cash"
	}

	var bill models.Bill

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		productIDs := make([]uint, 0, len(input.Items))
		for _, item := range input.Items {
			productIDs = append(productIDs, item.ProductID)
		}

		var products []models.Product
		if err := tx.Where("shop_id = ? AND id IN ?", identity.ShopID, productIDs).
			Find(&products).Error; err != nil {
			return err
		}
		if len(products) != len(productIDs) {
			return ErrProductNotFound
		}

		productMap := make(map[uint]models.Product, len(products))
		for _, p := range products {
			productMap[p.ID] = p
		}

		var subtotal float64
		for _, item := range input.Items {
			product := productMap[item.ProductID]
			if product.StockQuantity < item.Quantity {
				return fmt.Errorf("%w for %s", ErrInsufficientStock, product.Name)
			}
			subtotal += product.Price * float64(item.Quantity)
		}

		bill = models.Bill{
			ShopID:        identity.ShopID,
			UserID:        identity.ID,
			Subtotal:      subtotal,
			Tax:           input.Tax,
			Discount:      input.Discount,
			Total:         subtotal + input.Tax - input.Discount,
			PaymentMethod: input.PaymentMethod,
		}
		if err := tx.Create(&bill).Error; err != nil {
			return err
		}

		for _, item := range input.Items {
			product := productMap[item.ProductID]
			lineTotal := product.Price * float64(item.Quantity)

			billItem := models.BillItem{
				BillID:      bill.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				SKU:         product.SKU,
				Quantity:    item.Quantity,
				UnitPrice:   product.Price,
				LineTotal:   lineTotal,
			}
			if err := tx.Create(&billItem).Error; err != nil {
				return err
			}

			if err := tx.Model(&models.Product{}).
				Where("id = ? AND shop_id = ?", product.ID, identity.ShopID).
				Update("stock_quantity", gorm.Expr("stock_quantity - ?", item.Quantity)).Error; err != nil {
				return err
			}

			movement := models.StockMovement{
				ShopID:         identity.ShopID,
				ProductID:      product.ID,
				QuantityChange: -item.Quantity,
				Reason:         "POS Sale",
				UserID:         identity.ID,
			}
			if err := tx.Create(&movement).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// 事务提交后再发销售事件，失败只记日志不影响开单
	if s.producer != nil {
		sale := kafka.SaleMessage{
			BillID:    bill.ID,
			ShopID:    bill.ShopID,
			UserID:    bill.UserID,
			Total:     bill.Total,
			Timestamp: time.Now().Unix(),
		}
		if err := s.producer.SendSale(s.salesTopic, sale); err != nil {
			log.Printf("Failed to publish sale event for bill %d: %v", bill.ID, err)
		}
	}

	return &bill, nil
}

func (s *POSService) ListBills(ctx context.Context, shopID uint) ([]models.Bill, error) {
	var bills []models.Bill
	err := s.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("created_at DESC").
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (s *POSService) GetBill(ctx context.Context, shopID, billID uint) (*models.Bill, error) {
	var bill models.Bill
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("id = ? AND shop_id = ?", billID, shopID).
		First(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBillNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bill, nil
}
