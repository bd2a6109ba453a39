package i18n

type message struct {
	en string
	ar string
}

var errorMessages = map[string]message{
	"invalid_request":       {en: "The request is invalid.", ar: "الطلب غير صالح."},
	"unauthenticated":       {en: "Sign in to continue.", ar: "يرجى تسجيل الدخول للمتابعة."},
	"token_expired":         {en: "Your session has expired. Sign in again.", ar: "انتهت صلاحية الجلسة. يرجى تسجيل الدخول مرة أخرى."},
	"invalid_token":         {en: "The credentials could not be verified.", ar: "تعذر التحقق من بيانات الاعتماد."},
	"forbidden":             {en: "You are not allowed to do this.", ar: "غير مسموح لك بتنفيذ هذا الإجراء."},
	"category_not_found":    {en: "Category not found.", ar: "الفئة غير موجودة."},
	"product_not_found":     {en: "Product not found.", ar: "المنتج غير موجود."},
	"service_not_found":     {en: "Service not found.", ar: "الخدمة غير موجودة."},
	"version_conflict":      {en: "The category changed since it was loaded. Reload and try again.", ar: "تم تعديل الفئة منذ تحميلها. يرجى إعادة التحميل والمحاولة مجددًا."},
	"store_unavailable":     {en: "The catalog is temporarily unavailable.", ar: "الكتالوج غير متاح مؤقتًا."},
	"uploads_disabled":      {en: "Image uploads are not configured.", ar: "رفع الصور غير مهيأ."},
	"rate_limited":          {en: "Too many requests. Try again shortly.", ar: "طلبات كثيرة جدًا. حاول مرة أخرى بعد قليل."},
	"idempotency_conflict":  {en: "This request is already being processed.", ar: "هذا الطلب قيد المعالجة بالفعل."},
	"route_not_found":       {en: "Not found.", ar: "غير موجود."},
	"method_not_allowed":    {en: "Method not allowed.", ar: "الطريقة غير مسموحة."},
	"internal_server_error": {en: "Something went wrong.", ar: "حدث خطأ ما."},
}

// ErrorMessage returns the fixed message for an error code in the locale. The second result is
// false when the code has no fixed message.
func ErrorMessage(locale Locale, code string) (string, bool) {
	msg, ok := errorMessages[code]
	if !ok {
		return "", false
	}
	if locale.Lang == Arabic {
		return msg.ar, true
	}
	return msg.en, true
}
